// Command pinger compares the round trip of plain http requests with the
// trust ping latency reported by agents over their control api.
//
// remote.csv rows: label, host, control port, connection id
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const (
	pingPort = 9797
	attempts = 3
)

type node struct {
	label, host, controlPort, connID string
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalln(`usage: pinger client|server`)
	}

	switch os.Args[1] {
	case `client`:
		testPing()
	case `server`:
		server()
	default:
		log.Fatalln(`unknown mode`, os.Args[1])
	}
}

func server() {
	r := mux.NewRouter()
	r.HandleFunc(`/ping`, handlePing).Methods(http.MethodGet)
	if err := http.ListenAndServe(":"+strconv.Itoa(pingPort), r); err != nil {
		log.Fatalln(fmt.Sprintf(`http server initialization failed - %v`, err))
	}
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte(`ok`))
}

func testPing() {
	for _, n := range read() {
		fmt.Printf("# ping test to %s (%s)\n", n.label, n.host)
		var httpTotal, didTotal float64
		for j := 0; j < attempts; j++ {
			latency, err := ping(n.host)
			if err != nil {
				fmt.Printf("	> attempt %d failed: %s\n", j, err)
				continue
			}

			didLatency, err := trustPing(n)
			if err != nil {
				fmt.Printf("	> attempt %d failed: %s\n", j, err)
				continue
			}

			httpTotal += latency
			didTotal += didLatency
			fmt.Printf("	> attempt %d: http %.2f ms, trust ping %.2f ms\n", j, latency, didLatency)
		}
		fmt.Printf("  average: http %.2f ms, trust ping %.2f ms\n\n", httpTotal/attempts, didTotal/attempts)
	}
}

func read() (nodes []node) {
	f, err := os.Open(`remote.csv`)
	if err != nil {
		log.Fatalln(fmt.Sprintf(`opening file failed - %v`, err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	records, err := r.ReadAll()
	if err != nil {
		log.Fatalln(`reading nodes failed -`, err)
	}

	for _, row := range records {
		nodes = append(nodes, node{label: row[0], host: row[1], controlPort: row[2], connID: row[3]})
	}
	return nodes
}

func ping(host string) (float64, error) {
	start := time.Now()
	res, err := http.Get(`http://` + host + `:` + strconv.Itoa(pingPort) + `/ping`)
	if err != nil {
		return 0, fmt.Errorf(`request failed - %v`, err)
	}
	latency := float64(time.Since(start).Microseconds()) / 1000
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf(`reading response failed - %v`, err)
	}

	if string(data) != `ok` {
		return 0, fmt.Errorf(`unexpected response - %s`, data)
	}
	return latency, nil
}

// trustPing asks the agent to ping the other party of the connection
func trustPing(n node) (float64, error) {
	body, err := json.Marshal(map[string]string{`connection_id`: n.connID})
	if err != nil {
		return 0, err
	}

	res, err := http.Post(`http://`+n.host+`:`+n.controlPort+`/ping`, `application/json`, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf(`request failed - %v`, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf(`agent responded with %d - %s`, res.StatusCode, data)
	}

	var out struct {
		LatencyMs float64 `json:"latency_ms"`
	}
	if err = json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf(`decoding response failed - %v`, err)
	}
	return out.LatencyMs, nil
}
