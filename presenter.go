package piimask

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DownloadFileName is the fixed name masked results are saved under. The
// service re-encodes every result as PNG, so the name never varies with
// the input format.
const DownloadFileName = "masked_image.png"

// DiskPresenter implements interface Presenter. It renders masked images
// as log lines, the closest a terminal gets to an <img> tag, and downloads
// them into a directory on local disk. It keeps only the image most
// recently presented; a newer result replaces the older one wholesale.
type DiskPresenter struct {
	log zerolog.Logger
	dir string
	mu  sync.Mutex
	cur *MaskedImage
	wg  sync.WaitGroup
}

// NewDiskPresenter returns a presenter downloading into dir. An empty dir
// means the current working directory.
func NewDiskPresenter(l zerolog.Logger, dir string) *DiskPresenter {
	return &DiskPresenter{
		log: l.With().Str("component", "presenter").Logger(),
		dir: dir,
	}
}

// Present implements interface Presenter. A nil img clears the view;
// rendering nothing is the normal state before the first success.
func (p *DiskPresenter) Present(img *MaskedImage) {
	p.mu.Lock()
	p.cur = img
	p.mu.Unlock()

	if img == nil {
		return
	}

	if cfg, err := png.DecodeConfig(bytes.NewReader(img.Bytes())); err == nil {
		p.log.Info().
			Int("width", cfg.Width).
			Int("height", cfg.Height).
			Int("size", len(img.Bytes())).
			Msg("masked image ready")
		return
	}

	// The service promises PNG output; an unreadable header is worth a
	// line, but the image is still presented and saveable as-is.
	p.log.Warn().Int("size", len(img.Bytes())).Msg("masked image ready (unreadable png header)")
}

// Current implements interface Presenter.
func (p *DiskPresenter) Current() *MaskedImage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Download implements interface Presenter. It writes the displayed image
// under DownloadFileName inside the presenter's directory and returns the
// written path.
func (p *DiskPresenter) Download() (string, error) {
	img := p.Current()
	if img == nil {
		return "", errors.New("no masked image to save")
	}

	path := filepath.Join(p.dir, DownloadFileName)
	if err := os.WriteFile(path, img.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}

	p.log.Info().Str("path", path).Int("size", len(img.Bytes())).Msg("masked image saved")
	return path, nil
}

// Subscribe consumes results on a separate goroutine, presenting every
// image as it arrives, until the channel closes or ctx is done. Wait joins
// the subscription.
func (p *DiskPresenter) Subscribe(ctx context.Context, results <-chan *MaskedImage) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case img, ok := <-results:
				if !ok {
					return
				}
				p.Present(img)
			}
		}
	}()
}

// Wait blocks until every subscription started with Subscribe has ended.
func (p *DiskPresenter) Wait() {
	p.wg.Wait()
}
