package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-screening/core/audio/miniaudio"
	"github.com/koscakluka/ema-screening/core/events"
	flag "github.com/spf13/pflag"
)

func main() {
	serverURL := flag.StringP("server", "s", "http://localhost:8000", "screening server base url")
	flag.Parse()

	if err := run(*serverURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(serverURL string) error {
	recorder, err := miniaudio.NewRecorder()
	if err != nil {
		return err
	}
	defer recorder.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := connect(ctx, serverURL)
	if err != nil {
		return err
	}
	defer c.close()

	program := tea.NewProgram(newModel(c, recorder), tea.WithAltScreen())
	go c.listen(
		func(message events.Message) { program.Send(serverMessage(message)) },
		func(err error) { program.Send(disconnected{err: err}) },
	)

	_, err = program.Run()
	return err
}
