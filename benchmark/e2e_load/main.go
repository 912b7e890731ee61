// Signalgrid E2E load benchmark.
//
// Measures emit-to-receive latency under concurrent load: a real gateway on
// a real TCP listener, N WebSocket subscribers, and a broadcast emitter
// running at a target rate. Reported latency covers:
// emit → validate → bus publish → local delivery → WS write → client read/decode
//
// Run:
//
//	cd benchmark/e2e_load
//	go run . -clients=200 -duration=30s -rps=50 -payload-bytes=256
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalgrid-dev/signalgrid/pkg/bus"
	"github.com/signalgrid-dev/signalgrid/pkg/client"
	"github.com/signalgrid-dev/signalgrid/pkg/server"
	"github.com/signalgrid-dev/signalgrid/pkg/signal"
)

type loadPayload struct {
	Seq      uint64 `json:"seq"`
	EmitNano int64  `json:"emitNano"`
	Filler   string `json:"filler,omitempty"`
}

var loadSignal = signal.New[loadPayload]("bench.tick")

func main() {
	var (
		clients      = flag.Int("clients", 100, "number of concurrent websocket subscribers")
		duration     = flag.Duration("duration", 15*time.Second, "how long to run the load test")
		rps          = flag.Float64("rps", 20, "broadcast emissions per second")
		payloadBytes = flag.Int("payload-bytes", 64, "filler bytes per payload")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("-clients must be > 0")
	}
	if *duration <= 0 {
		log.Fatal("-duration must be > 0")
	}
	if *rps <= 0 {
		log.Fatal("-rps must be > 0")
	}
	if *payloadBytes < 0 {
		log.Fatal("-payload-bytes must be >= 0")
	}

	debug.SetGCPercent(100)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	signals := signal.NewRegistry()
	signals.MustRegister(loadSignal)

	srv, err := server.New(&server.Config{SendQueueSize: 256}, server.Deps{
		Signals: signals,
		Bus:     bus.NewMemory(),
		Auth: func(r *http.Request) (string, error) {
			return r.URL.Query().Get("user"), nil
		},
		Logger: quiet,
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	httpServer := &http.Server{Handler: srv.Handler()}
	go func() { _ = httpServer.Serve(ln) }()
	defer func() { _ = httpServer.Shutdown(context.Background()) }()

	wsURL := "ws://" + ln.Addr().String() + "/ws"

	var (
		samplesMu sync.Mutex
		samples   []time.Duration
		received  atomic.Uint64
	)

	conns := make([]*client.Client, 0, *clients)
	for i := 0; i < *clients; i++ {
		c, err := client.Dial(context.Background(), client.Config{
			URL:    fmt.Sprintf("%s?user=u%d", wsURL, i),
			Logger: quiet,
		})
		if err != nil {
			log.Fatalf("dial client %d: %v", i, err)
		}
		defer c.Close()
		conns = append(conns, c)

		client.On(c, loadSignal, func(p loadPayload) {
			rtt := time.Duration(time.Now().UnixNano() - p.EmitNano)
			received.Add(1)
			samplesMu.Lock()
			samples = append(samples, rtt)
			samplesMu.Unlock()
		})
	}

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	filler := strings.Repeat("x", *payloadBytes)
	interval := time.Duration(float64(time.Second) / *rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var emitted, emitErrors uint64
	start := time.Now()

loop:
	for seq := uint64(1); ; seq++ {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			err := server.Broadcast(context.Background(), srv.Service(), loadSignal, loadPayload{
				Seq:      seq,
				EmitNano: time.Now().UnixNano(),
				Filler:   filler,
			})
			if err != nil {
				emitErrors++
				continue
			}
			emitted++
		}
	}
	elapsed := time.Since(start)

	// Let in-flight deliveries drain.
	time.Sleep(500 * time.Millisecond)
	for _, c := range conns {
		c.Close()
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	samplesMu.Lock()
	results := append([]time.Duration(nil), samples...)
	samplesMu.Unlock()
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })

	expected := emitted * uint64(*clients)
	fmt.Printf("clients:            %d\n", *clients)
	fmt.Printf("duration:           %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("emissions:          %d (%d errors)\n", emitted, emitErrors)
	fmt.Printf("deliveries:         %d / %d expected (%.2f%%)\n",
		received.Load(), expected, 100*float64(received.Load())/float64(max(expected, 1)))
	fmt.Printf("delivery rate:      %.0f/s\n", float64(received.Load())/elapsed.Seconds())
	if len(results) > 0 {
		fmt.Printf("latency p50:        %v\n", percentile(results, 0.50))
		fmt.Printf("latency p95:        %v\n", percentile(results, 0.95))
		fmt.Printf("latency p99:        %v\n", percentile(results, 0.99))
		fmt.Printf("latency max:        %v\n", results[len(results)-1])
	}
	fmt.Printf("alloc delta:        %s\n", formatBytes(after.TotalAlloc-before.TotalAlloc))
	fmt.Printf("gc cycles:          %d\n", after.NumGC-before.NumGC)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
