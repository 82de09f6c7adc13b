// Mock bot that feeds simulated chat traffic into a running botwatch server
// Usage: go run ./cmd/mock --addr http://localhost:8080 --rate 5
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/jiin/botwatch/internal/logger"
)

var (
	addr      = flag.String("addr", "http://localhost:8080", "botwatch server base URL")
	rate      = flag.Int("rate", 5, "average messages per tick")
	tick      = flag.Duration("tick", 2*time.Second, "time between bursts of traffic")
	errorPct  = flag.Float64("error-pct", 2, "percentage of messages that fail")
	aiPct     = flag.Float64("ai-pct", 60, "percentage of messages answered by the LLM")
	spikeEach = flag.Int("spike-every", 0, "every N ticks send a slow, error-heavy burst (0 disables)")
)

// Simulated bot state
type botState struct {
	queue       int
	activeChats int
}

var state = &botState{activeChats: 10}

func main() {
	flag.Parse()
	log := logger.WithComponent("mock")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 5 * time.Second}
	base := strings.TrimRight(*addr, "/")
	log.Info("Mock bot sending traffic", "addr", base, "rate", *rate, "tick", tick.String())

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		spike := *spikeEach > 0 && n%*spikeEach == 0
		sent, failed := simulateTick(client, base, spike)
		if failed > 0 {
			log.Warn("Some tracking calls failed", "sent", sent, "failed", failed)
		} else {
			log.Debug("Tick sent", "messages", sent, "spike", spike, "queue", state.queue, "chats", state.activeChats)
		}
	}
}

func simulateActivity(spike bool) {
	state.activeChats += rand.Intn(5) - 2
	if state.activeChats < 0 {
		state.activeChats = 0
	}

	if spike {
		state.queue += 50 + rand.Intn(100)
	} else if rand.Intn(10) == 0 {
		state.queue += rand.Intn(5)
	} else if state.queue > 0 {
		state.queue -= min(state.queue, 1+rand.Intn(10))
	}
}

// simulateTick posts one burst of traffic and returns how many messages
// were sent and how many calls failed.
func simulateTick(client *http.Client, base string, spike bool) (sent, failed int) {
	simulateActivity(spike)

	count := 1 + rand.Intn(max(1, 2*(*rate)))
	errPct := *errorPct
	if spike {
		errPct = 25
	}

	for i := 0; i < count; i++ {
		// 300ms to 2.3s normally, up to 10s during a spike
		responseMs := 300 + rand.Float64()*2000
		if spike {
			responseMs = 5000 + rand.Float64()*5000
		}

		msg := map[string]any{
			"responseTimeMs": responseMs,
			"queueSize":      state.queue,
			"activeChats":    state.activeChats,
		}
		if !post(client, base+"/api/track/message", msg) {
			failed++
			continue
		}
		sent++

		if rand.Float64()*100 < *aiPct {
			ai := map[string]any{
				"tokens":           200 + rand.Intn(1200),
				"processingTimeMs": responseMs * (0.6 + rand.Float64()*0.3),
			}
			if !post(client, base+"/api/track/ai", ai) {
				failed++
			}
		}

		if rand.Float64()*100 < errPct {
			report := map[string]any{
				"source":  pick("whatsapp", "crm", "llm"),
				"message": pick("send timeout", "lead sync failed", "completion rejected"),
				"context": map[string]any{"chat": fmt.Sprintf("chat-%d", rand.Intn(500))},
			}
			if !post(client, base+"/api/track/error", report) {
				failed++
			}
		}
	}
	return sent, failed
}

func pick(options ...string) string {
	return options[rand.Intn(len(options))]
}

func post(client *http.Client, url string, body any) bool {
	data, err := json.Marshal(body)
	if err != nil {
		return false
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusAccepted
}
