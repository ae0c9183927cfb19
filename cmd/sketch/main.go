// Command sketch is a line-oriented whiteboard client. It joins a channel
// through the relay or Redis and drives the board from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"whiteboard/internal/channel"
	"whiteboard/internal/config"
	"whiteboard/internal/session"
)

func main() {
	os.Exit(run(openChannel))
}

// run returns the exit code once every deferred close has run
func run(open func(config.ClientConfig) (channel.Channel, func())) int {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, closeCh := open(cfg.Client)
	defer closeCh()

	sess, err := session.Open(ctx, session.Config{
		Channel:     ch,
		Identity:    session.StaticIdentity{DisplayName: cfg.Client.DisplayName},
		Notifier:    session.NotifierFunc(func(msg string) { fmt.Fprintln(os.Stderr, msg) }),
		CursorRate:  rate.Limit(cfg.Limits.CursorRate),
		CursorBurst: cfg.Limits.CursorBurst,
	})
	if err != nil {
		slog.Debug("open session", "err", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sess.Close(closeCtx)
	}()

	go sess.Run(ctx)

	self := sess.Self()
	fmt.Printf("joined %s as %s (%s)\n", cfg.Client.Channel, self.ID, self.Color)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	d := newDriver(sess, os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return 0
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			quit, err := d.execute(ctx, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			if quit {
				return 0
			}
		}
	}
}

// openChannel builds the configured transport
func openChannel(c config.ClientConfig) (channel.Channel, func()) {
	if c.Transport == config.TransportRedis {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return channel.NewRedis(rdb, c.Channel), func() { rdb.Close() }
	}
	return channel.NewWebSocket(c.RelayURL, c.Channel), func() {}
}
