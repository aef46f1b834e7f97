package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sorgu/sorgu/internal/cli"
	"github.com/sorgu/sorgu/internal/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Options{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Lookup:      os.LookupEnv,
		EnvFiles:    []string{".env"},
		OpenSecrets: secrets.Open,
		Interactive: isTerminal(os.Stdout),
	})
	stop()
	os.Exit(code)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
