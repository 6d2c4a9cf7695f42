// Command sse_load opens many concurrent SSE connections against a
// simulator stream endpoint and reports event throughput. Useful for
// sizing the broadcaster buffers before demos with many dashboards.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
}

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://127.0.0.1:8080/exchange/stream", "SSE endpoint URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent connections")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 runs until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "window to spread connection starts across")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = time.Duration(connections/500) * time.Second
		if rampUp < time.Second {
			rampUp = time.Second
		}
		log.Printf("using default ramp-up %s for %d connections", rampUp, connections)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	log.Printf("starting SSE load: url=%s conns=%d dur=%s ramp=%s", targetURL, connections, duration, rampUp)

	var (
		stats counters
		wg    sync.WaitGroup
	)
	start := time.Now()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	for i := 0; i < connections; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, client, targetURL, &stats)
		}()
	}

	go report(ctx, &stats, start)
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s events/s=%.2f\n",
		stats.connected.Load(), stats.connectErrs.Load(), stats.streamErrs.Load(),
		stats.events.Load(), elapsed.Truncate(time.Millisecond),
		float64(stats.events.Load())/elapsed.Seconds())
}

// consume holds one SSE connection open, counting data lines until ctx ends.
func consume(ctx context.Context, client *http.Client, url string, stats *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stats.connectErrs.Add(1)
		return
	}

	stats.connected.Add(1)
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				stats.streamErrs.Add(1)
			}
			return
		}
		// heartbeats start with ':' and separators are blank lines
		if len(line) > 0 && line[0] != ':' && line != "\n" && line != "\r\n" {
			stats.events.Add(1)
		}
	}
}

func report(ctx context.Context, stats *counters, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("status: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s",
				stats.connected.Load(), stats.connectErrs.Load(), stats.streamErrs.Load(),
				stats.events.Load(), time.Since(start).Truncate(time.Second))
		}
	}
}
