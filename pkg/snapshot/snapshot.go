// Package snapshot writes converted frames to disk as PNG images,
// optionally stamped with a frame label.
package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/log"
	"github.com/tauraamui/xerror"
)

var fs afero.Fs = afero.NewOsFs()

type Saver struct {
	dir       string
	drawLabel bool
}

// NewSaver writes frames into dir, creating it on first use. With
// drawLabel set each image carries its frame number and timestamp in
// the top left corner.
func NewSaver(dir string, drawLabel bool) *Saver {
	return &Saver{dir: dir, drawLabel: drawLabel}
}

// Save encodes one frame as frame_<number>.png under the saver's dir.
func (s *Saver) Save(f frame.RGB) error {
	if len(f.Data) < int(f.Width)*int(f.Height)*3 {
		return xerror.Errorf(
			"frame %d data too short for %dx%d image", f.Number, f.Width, f.Height,
		)
	}

	if err := fs.MkdirAll(s.dir, 0o755); err != nil {
		return xerror.Errorf("unable to create snapshot dir %s: %v", s.dir, err)
	}

	img := toImage(f)
	if s.drawLabel {
		label := fmt.Sprintf("frame %06d  t=%.2fs", f.Number, f.Timestamp)
		if err := drawText(img, 15, 50, label); err != nil {
			log.Warn("unable to label frame %d: %v", f.Number, err)
		}
	}

	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", f.Number))
	file, err := fs.Create(path)
	if err != nil {
		return xerror.Errorf("unable to create %s: %v", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return xerror.Errorf("unable to encode %s: %v", path, err)
	}
	return nil
}

// SaveAll writes every frame, logging and skipping the ones that fail.
// It reports how many images landed on disk.
func (s *Saver) SaveAll(frames []frame.RGB) int {
	saved := 0
	for _, f := range frames {
		if err := s.Save(f); err != nil {
			log.Error("unable to save frame %d: %v", f.Number, err)
			continue
		}
		saved++
	}
	return saved
}

func toImage(f frame.RGB) *image.RGBA {
	w, h := int(f.Width), int(f.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			img.SetRGBA(x, y, color.RGBA{
				R: f.Data[i], G: f.Data[i+1], B: f.Data[i+2], A: 255,
			})
		}
	}
	return img
}
