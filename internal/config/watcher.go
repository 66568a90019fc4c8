package config

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const watchInterval = 5 * time.Second

// Watcher polls the strategy file's mtime and re-parses it on change.
// A parse failure keeps the previously loaded parameters in effect; the
// next mtime change retries.
type Watcher struct {
	mu       sync.Mutex
	path     string
	lastMod  time.Time
	onChange func(*Strategies)
	running  bool
	stopCh   chan struct{}
}

// NewWatcher creates a watcher for path. onChange runs on the watcher
// goroutine for every successful reload.
func NewWatcher(path string, onChange func(*Strategies)) *Watcher {
	w := &Watcher{
		path:     path,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Start launches the polling loop.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.loop()
	log.Info().Str("file", w.path).Msg("⚙️ Strategy watcher started")
}

// Stop terminates the polling loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkOnce()
		}
	}
}

func (w *Watcher) checkOnce() {
	info, err := os.Stat(w.path)
	if err != nil {
		// File removed or unreadable: keep current parameters.
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastMod)
	if changed {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()

	if !changed {
		return
	}

	strategies, err := LoadStrategies(w.path)
	if err != nil {
		log.Error().Err(err).Str("file", w.path).
			Msg("⚙️ Strategy reload failed, keeping previous parameters")
		return
	}

	log.Info().Str("file", w.path).
		Int("wallets", len(strategies.WatchedWallets)).
		Msg("⚙️ Strategy parameters reloaded")
	w.onChange(strategies)
}
