// Command srt-push paces a raw DTS elementary stream file over an SRT
// connection at a target bitrate, looping continuously, for exercising a
// running dtsdemux relay without a live encoder.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	srt "github.com/zsiec/srtgo"
)

const chunkSize = 7 * 1316

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT server address")
	keyFlag := flag.String("key", "", "stream key (default: filename without extension)")
	bitrateFlag := flag.Float64("bitrate", 1536000, "target bitrate in bits/sec (DTS core is typically 768k-1536k)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: srt-push [-addr host:port] [-key name] [-bitrate bps] <file.dts>")
		os.Exit(1)
	}
	filePath := flag.Arg(0)

	streamKey := *keyFlag
	if streamKey == "" {
		base := filepath.Base(filePath)
		streamKey = base[:len(base)-len(filepath.Ext(base))]
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", filePath, err)
		os.Exit(1)
	}

	bytesPerSec := *bitrateFlag / 8
	streamID := "live/" + streamKey

	fmt.Printf("[%s] %d bytes, target %.0f B/s\n", streamKey, len(data), bytesPerSec)

	for {
		fmt.Printf("[%s] connecting to SRT %s...\n", streamKey, *addrFlag)

		cfg := srt.DefaultConfig()
		cfg.StreamID = streamID

		conn, err := srt.Dial(*addrFlag, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] SRT connect failed: %v, retrying...\n", streamKey, err)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("[%s] connected, streaming continuously\n", streamKey)
		err = streamLoop(conn, data, bytesPerSec, streamKey)
		conn.Close()

		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] connection lost: %v, reconnecting...\n", streamKey, err)
			time.Sleep(time.Second)
		}
	}
}

func streamLoop(conn *srt.Conn, data []byte, bytesPerSec float64, streamKey string) error {
	globalStart := time.Now()
	var totalBytesSent int64
	lastLog := time.Now()
	const logInterval = 10 * time.Second

	for loop := 1; ; loop++ {
		if loop > 1 {
			fmt.Printf("[%s] loop %d complete, restarting from offset 0 (total sent: %.1f MB)\n",
				streamKey, loop-1, float64(totalBytesSent)/(1024*1024))
		}

		for i := 0; i < len(data); i += chunkSize {
			end := i + chunkSize
			if end > len(data) {
				end = len(data)
			}

			if _, err := conn.Write(data[i:end]); err != nil {
				return err
			}
			totalBytesSent += int64(end - i)

			expectedTime := float64(totalBytesSent) / bytesPerSec
			elapsed := time.Since(globalStart).Seconds()
			if expectedTime > elapsed {
				time.Sleep(time.Duration((expectedTime - elapsed) * float64(time.Second)))
			}

			if time.Since(lastLog) >= logInterval {
				actualRate := float64(totalBytesSent) / time.Since(globalStart).Seconds()
				fmt.Printf("[%s] loop=%d rate=%.0f B/s (target=%.0f) total=%.1f MB\n",
					streamKey, loop, actualRate, bytesPerSec, float64(totalBytesSent)/(1024*1024))
				lastLog = time.Now()
			}
		}
	}
}
