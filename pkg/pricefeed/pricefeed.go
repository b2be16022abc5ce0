// Package pricefeed keeps the treasury deposit price in sync with a file on
// disk. The file holds either a bare base-10 integer or a YAML document with a
// "price" key; the value is the 18-decimal fixed-point price.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/agoradao/agora/pkg/domain"
)

const defaultDebounce = 100 * time.Millisecond

// Updater applies a new price on behalf of caller.
type Updater interface {
	UpdatePrice(ctx context.Context, caller common.Address, price *big.Int) error
}

// Options configures a Watcher.
type Options struct {
	Path    string
	Updater Updater
	// Admin is the identity price updates are made as.
	Admin    common.Address
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher applies the file's price at start and after every change.
type Watcher struct {
	path     string
	updater  Updater
	admin    common.Address
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	last    *big.Int
	applied chan *big.Int
}

type priceFile struct {
	Price string `yaml:"price"`
}

// ParseFile reads a price from data.
func ParseFile(data []byte) (*big.Int, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.New("price file is empty")
	}
	if price, ok := new(big.Int).SetString(text, 10); ok {
		return checkPrice(price)
	}
	var doc priceFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse price file: %w", err)
	}
	price, err := domain.ParseAmount(doc.Price)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	return checkPrice(price)
}

func checkPrice(price *big.Int) (*big.Int, error) {
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("price: %w", domain.ErrZeroValue)
	}
	return price, nil
}

// Start loads the file once and begins watching its directory. The returned
// Watcher runs until Close or until ctx is cancelled.
func Start(ctx context.Context, opts Options) (*Watcher, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("pricefeed: path is required")
	}
	if opts.Updater == nil {
		return nil, errors.New("pricefeed: updater is required")
	}
	absPath, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: resolve path: %w", err)
	}
	w := &Watcher{
		path:     absPath,
		updater:  opts.Updater,
		admin:    opts.Admin,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		done:     make(chan struct{}),
		applied:  make(chan *big.Int, 1),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	if err := w.Reload(ctx); err != nil {
		w.logger.WarnContext(ctx, "initial price load failed", "path", w.path, "error", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pricefeed: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("pricefeed: watch directory: %w", err)
	}
	w.watcher = watcher

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.watchLoop(loopCtx)
	return w, nil
}

// Applied delivers each price after it has been accepted by the updater. Only
// the latest value is buffered.
func (w *Watcher) Applied() <-chan *big.Int {
	return w.applied
}

// Last returns the most recently applied price, or nil.
func (w *Watcher) Last() *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return nil
	}
	return new(big.Int).Set(w.last)
}

// Reload reads the file and applies its price when it differs from the last
// one applied.
func (w *Watcher) Reload(ctx context.Context) error {
	// #nosec G304 -- path is configured at startup
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	price, err := ParseFile(data)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil && w.last.Cmp(price) == 0 {
		return nil
	}
	if err := w.updater.UpdatePrice(ctx, w.admin, price); err != nil {
		return fmt.Errorf("apply price: %w", err)
	}
	w.last = price
	select {
	case <-w.applied:
	default:
	}
	w.applied <- new(big.Int).Set(price)
	w.logger.InfoContext(ctx, "treasury price reloaded", "path", w.path, "price", price.String())
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, func() {
					if err := w.Reload(ctx); err != nil && ctx.Err() == nil {
						w.logger.ErrorContext(ctx, "price reload failed", "path", w.path, "error", err)
					}
				})
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WarnContext(ctx, "price watcher error", "error", err)
		}
	}
}
