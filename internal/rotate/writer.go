// Package implements a fixed-window rolling log file. The active file is renamed into numbered
// slots when it grows too large or too old, and the oldest slot is deleted.

package rotate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/y-scope/logroller/internal/config"
)

// Placeholder replaced by the slot index in a file name pattern.
const indexToken = "%i"

// Writer is an [io.WriteCloser] over the active log file. After every rollover the hook is called
// with the path of the newly rolled file, outside of the writer's lock.
type Writer struct {
	cfg      config.Rotation
	pattern  string
	onRotate func(path string)
	logger   zerolog.Logger

	// Serializes rollover and hook so a rolled file is reported before it can be shifted again.
	rollMu sync.Mutex

	mu    sync.Mutex
	file  *os.File
	size  int64
	timer *time.Timer
}

// New opens the active file, appending to it if it exists.
//
// Parameters:
//   - cfg: Rotation configuration
//   - onRotate: Called with each rolled file, may be nil
//   - logger: Logger for rollovers triggered by age
//
// Returns:
//   - writer: Open writer
//   - err: Missing file name, invalid indexes, error opening file
func New(cfg config.Rotation, onRotate func(path string), logger zerolog.Logger) (*Writer, error) {
	if cfg.FileName == "" {
		return nil, errors.New("rotation file name is required")
	}
	if cfg.MinIndex < 1 || cfg.MaxIndex < cfg.MinIndex {
		return nil, fmt.Errorf("invalid slot range [%d, %d]", cfg.MinIndex, cfg.MaxIndex)
	}

	pattern := cfg.FileNamePattern
	if pattern == "" {
		pattern = cfg.FileName + "." + indexToken
	}
	if !strings.Contains(pattern, indexToken) {
		return nil, fmt.Errorf("file name pattern %q does not contain %s", pattern, indexToken)
	}

	w := &Writer{
		cfg:      cfg,
		pattern:  pattern,
		onRotate: onRotate,
		logger:   logger,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openFile(); err != nil {
		return nil, err
	}
	w.armTimer()

	return w, nil
}

// ActiveFileName returns the path of the file currently written to.
func (w *Writer) ActiveFileName() string {
	return w.cfg.FileName
}

// SlotName returns the path of rolled slot i.
func (w *Writer) SlotName(i int) string {
	return strings.ReplaceAll(w.pattern, indexToken, strconv.Itoa(i))
}

// Write appends p to the active file, rolling over first if p would push the file past the
// maximum size. A file is never rolled while empty, so a single write larger than the maximum
// still lands in one file.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	needsRoll := w.file != nil && w.exceedsSize(len(p))
	w.mu.Unlock()

	if needsRoll {
		if err := w.roll(len(p)); err != nil {
			return 0, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rollover rolls the active file now. An empty active file is left in place.
//
// Returns:
//   - err: Writer closed, error renaming or reopening files
func (w *Writer) Rollover() error {
	return w.roll(-1)
}

// Close stops the age timer and closes the active file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll performs one rollover and reports it. When incoming is not negative the size check is
// repeated under the lock since another writer may have rolled in the meantime.
func (w *Writer) roll(incoming int) error {
	w.rollMu.Lock()
	defer w.rollMu.Unlock()

	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return os.ErrClosed
	}
	if incoming >= 0 && !w.exceedsSize(incoming) {
		w.mu.Unlock()
		return nil
	}
	rolled, err := w.rollover()
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to roll over %s: %w", w.cfg.FileName, err)
	}
	if rolled != "" && w.onRotate != nil {
		w.onRotate(rolled)
	}
	return nil
}

// exceedsSize reports whether writing n more bytes passes the maximum size. Caller must hold w.mu.
func (w *Writer) exceedsSize(n int) bool {
	return w.cfg.MaxSize > 0 && w.size > 0 && w.size+int64(n) > w.cfg.MaxSize
}

// rollover shifts every slot up by one, dropping the highest, then moves the active file into the
// lowest slot and reopens it. Caller must hold w.mu.
//
// Returns:
//   - rolled: Path of the rolled file, empty if nothing was rolled
//   - err: Error renaming or reopening files
func (w *Writer) rollover() (string, error) {
	defer w.armTimer()

	if w.size == 0 {
		return "", nil
	}

	if err := w.file.Close(); err != nil {
		return "", fmt.Errorf("failed to close active file: %w", err)
	}
	w.file = nil

	if err := os.Remove(w.SlotName(w.cfg.MaxIndex)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", w.reopen(fmt.Errorf("failed to remove oldest slot: %w", err))
	}
	for i := w.cfg.MaxIndex - 1; i >= w.cfg.MinIndex; i-- {
		err := os.Rename(w.SlotName(i), w.SlotName(i+1))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", w.reopen(fmt.Errorf("failed to shift slot %d: %w", i, err))
		}
	}

	rolled := w.SlotName(w.cfg.MinIndex)
	if err := os.Rename(w.cfg.FileName, rolled); err != nil {
		return "", w.reopen(fmt.Errorf("failed to rename active file: %w", err))
	}

	if err := w.openFile(); err != nil {
		return "", err
	}
	return rolled, nil
}

// reopen restores the active file after a failed rollover so writing can continue, and returns
// cause.
func (w *Writer) reopen(cause error) error {
	if err := w.openFile(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// openFile opens the active file for appending. Caller must hold w.mu.
func (w *Writer) openFile() error {
	dir := filepath.Dir(w.cfg.FileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(w.cfg.FileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

// armTimer restarts the age timer. Caller must hold w.mu.
func (w *Writer) armTimer() {
	if w.cfg.MaxAge <= 0 || w.file == nil {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.MaxAge, w.rollOnAge)
}

func (w *Writer) rollOnAge() {
	err := w.Rollover()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		w.logger.Error().Err(err).Str("path", w.cfg.FileName).Msg("Failed to roll over aged log file")
	}
}
