package cmd

import (
	"fmt"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

// spinnerFrames are the stick-style frames used by every spinner.
var spinnerFrames = []string{"|", "/", "-", "\\"}

// startSpinner shows "<frame> text" in a pterm area that is removed when the
// returned stop function is called. The cursor stays hidden meanwhile.
// Without a usable terminal area it prints text once and stop is a no-op.
func startSpinner(text string) func() {
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		pterm.Println(text)
		return func() {}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		area.Update(fmt.Sprintf("%s %s", spinnerFrames[0], text))
		for {
			select {
			case <-t.C:
				i++
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[i%len(spinnerFrames)], text))
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			_ = area.Stop()
			cursor.Show()
		})
	}
}

// withSpinner runs fn while a spinner shows text.
func withSpinner(text string, fn func() error) error {
	stop := startSpinner(text)
	defer stop()
	return fn()
}
