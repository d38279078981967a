package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// client is used for every call to the node. A proposal can wait for two
// consensus phases.
var client = http.Client{
	Timeout: 3 * time.Minute,
}

// call sends the request and writes the JSON response to stdout.
func call(method string, url string, body any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		out.Reset()
		out.Write(data)
	}
	out.WriteByte('\n')
	out.WriteTo(os.Stdout)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("node responded with %s", resp.Status)
	}

	return nil
}
