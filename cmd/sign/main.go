// Command sign computes a t=…,v1=… signature header for a JSON payload,
// for manual testing of the ingress endpoint without a live upstream
// provider. Flag-based CLI shape grounded on devops/tools/jwkgen.go;
// signature semantics grounded on original_source/backend/sign.py.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func main() {
	payload := flag.String("payload", "", `JSON payload, e.g. {"id":"evt_1","event":"charge.succeeded"}`)
	secret := flag.String("secret", "", "tenant signing secret")
	ts := flag.Int64("ts", 0, "unix timestamp to sign (default: now)")
	flag.Parse()

	if *payload == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: sign -payload '<json>' -secret '<signing_secret>' [-ts <unix>]")
		os.Exit(2)
	}

	// Round-trip through json.Marshal so the signed bytes match what the
	// caller will actually send on the wire, same as the original's
	// model_dump_json re-serialization.
	var v interface{}
	must(json.Unmarshal([]byte(*payload), &v))
	raw, err := json.Marshal(v)
	must(err)

	timestamp := *ts
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	signed := fmt.Sprintf("%d.%s", timestamp, raw)
	mac := hmac.New(sha256.New, []byte(*secret))
	mac.Write([]byte(signed))
	sig := hex.EncodeToString(mac.Sum(nil))

	header := fmt.Sprintf("t=%d,v1=%s", timestamp, sig)
	fmt.Println(header)
	fmt.Fprintf(os.Stderr, "payload: %s\n", raw)
}
