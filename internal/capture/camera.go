package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/visperlabs/visper-core/internal/config"
)

// CameraSource reads frames from a local capture device or a GStreamer
// pipeline through OpenCV. Close releases the device; a later Open acquires
// a fresh handle, so one source survives stop/start cycles.
type CameraSource struct {
	cfg config.CameraConfig

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

func NewCameraSource(cfg config.CameraConfig) *CameraSource {
	return &CameraSource{cfg: cfg}
}

func (c *CameraSource) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap != nil {
		return nil
	}

	var (
		cap *gocv.VideoCapture
		err error
	)
	if c.cfg.SourceType == "gstreamer" {
		cap, err = gocv.OpenVideoCaptureWithAPI(c.cfg.GstPipeline, gocv.VideoCaptureGstreamer)
	} else {
		cap, err = gocv.OpenVideoCapture(c.cfg.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}
	if !cap.IsOpened() {
		_ = cap.Close()
		return errors.New("capture source did not open")
	}

	// Resolution hints apply to plain devices only; a GStreamer pipeline
	// carries its own caps.
	if c.cfg.SourceType != "gstreamer" {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		cap.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
		cap.Set(gocv.VideoCaptureBufferSize, 1)
	}

	c.cap = cap
	return nil
}

func (c *CameraSource) Read() (*Frame, error) {
	c.mu.Lock()
	cap := c.cap
	c.mu.Unlock()

	if cap == nil {
		return nil, ErrSourceClosed
	}

	img := gocv.NewMat()
	if ok := cap.Read(&img); !ok || img.Empty() {
		_ = img.Close()
		return nil, errors.New("frame read failed")
	}
	return &Frame{Img: &img, Timestamp: time.Now()}, nil
}

func (c *CameraSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	return err
}
