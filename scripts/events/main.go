// Command events prints the events an agent publishes on its zmq pub port.
//
//	events -endpoint tcp://localhost:7001 -topics connections,basicmessages
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/YasiruR/didcomm-engine/pubsub"
	"github.com/gookit/color"
	zmq "github.com/pebbe/zmq4"
	"github.com/samber/lo"
)

const pollInterval = 500 * time.Millisecond

func main() {
	endpoint := flag.String(`endpoint`, `tcp://localhost:7001`, `pub endpoint of the agent`)
	topics := flag.String(`topics`, ``, `comma separated topics (all if empty)`)
	compressed := flag.Bool(`compress`, false, `agent publishes zstd compressed events`)
	flag.Parse()

	zmqCtx, err := zmq.NewContext()
	if err != nil {
		log.Fatalln(fmt.Sprintf(`creating zmq context failed - %v`, err))
	}

	names := lo.Compact(lo.Map(strings.Split(*topics, `,`), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	sub, err := pubsub.NewSubscriber(zmqCtx, *endpoint, *compressed, names...)
	if err != nil {
		log.Fatalln(err)
	}

	// the timeout lets the loop notice a shutdown signal
	if err = sub.SetTimeout(pollInterval); err != nil {
		log.Fatalln(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	fmt.Printf("-> listening to events of %s\n", *endpoint)

	for {
		select {
		case <-sig:
			sub.Close()
			zmqCtx.Term()
			return
		default:
		}

		e, err := sub.Receive()
		if err != nil {
			if !strings.Contains(err.Error(), `resource temporarily unavailable`) {
				color.Red.Printf("   Error: %v\n", err)
			}
			continue
		}

		payload, err := json.Marshal(e.Payload)
		if err != nil {
			payload = []byte(fmt.Sprint(e.Payload))
		}
		fmt.Printf("[%s] %s %s: %s\n", time.Now().Format(`15:04:05`), color.Cyan.Sprint(e.WalletID), color.Green.Sprint(e.Topic), payload)
	}
}
