package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/hybridgroup/mjpeg"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-ortdetect/annotate"
	"github.com/nvr-ai/go-ortdetect/config"
	"github.com/nvr-ai/go-ortdetect/detector"
	"github.com/nvr-ai/go-ortdetect/images"
	"github.com/nvr-ai/go-ortdetect/inference/providers"
	"github.com/nvr-ai/go-ortdetect/models"
	"github.com/nvr-ai/go-ortdetect/profiler"
	"github.com/nvr-ai/go-ortdetect/sink"
)

// pipeline reads frames, detects, draws and fans the results out to the configured outputs.
type pipeline struct {
	cfg      config.File
	logger   *slog.Logger
	labels   []string
	order    images.ColorOrder
	session  *providers.Session
	detector *detector.Detector
	palette  *annotate.Palette
	capture  *gocv.VideoCapture
	writer   *gocv.VideoWriter
	preview  *mjpeg.Stream
	sinks    sink.Multi
}

func newPipeline(ctx context.Context, cfg config.File, parent *slog.Logger, stages *profiler.Stages) (p *pipeline, err error) {
	p = &pipeline{
		cfg:    cfg,
		logger: parent.With("coroutine", "pipeline"),
	}
	defer func() {
		if err != nil {
			p.Close()
			p = nil
		}
	}()

	if p.labels, err = models.LoadLabels(cfg.Model.Labels, cfg.Model.NumClasses); err != nil {
		return p, err
	}
	if p.order, err = images.ParseColorOrder(cfg.Input.ColorOrder); err != nil {
		return p, err
	}

	sessOpts, err := cfg.Session()
	if err != nil {
		return p, err
	}
	if p.session, err = providers.NewSession(sessOpts); err != nil {
		return p, err
	}
	p.logger.Info("Model loaded",
		"model", cfg.Model.Path,
		"provider", sessOpts.Backend,
		"input_shape", p.session.InputShape(),
		"outputs", p.session.OutputNames(),
	)

	detCfg, err := cfg.Detector()
	if err != nil {
		return p, err
	}
	if p.detector, err = detector.New(detCfg, p.session, p.labels, parent); err != nil {
		return p, err
	}
	p.detector.SetProfiler(stages)
	p.palette = annotate.NewPalette(len(p.labels))

	if p.capture, err = gocv.OpenVideoCapture(cfg.Input.Path); err != nil {
		return p, errors.Wrapf(err, "can't open input %s", cfg.Input.Path)
	}

	p.sinks = sink.Multi{sink.NewLog(parent)}
	if cfg.MQTT.Enabled {
		m, err := sink.DialMQTT(ctx, sink.MQTTOptions{
			Address:        cfg.MQTT.Address,
			Topic:          cfg.MQTT.Topic,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeoutSec) * time.Second,
		}, parent)
		if err != nil {
			return p, err
		}
		p.sinks = append(p.sinks, m)
	}

	if cfg.Stream.Enabled {
		p.preview = mjpeg.NewStream()
	}
	return p, nil
}

// Preview returns the MJPEG stream fed with annotated frames, or nil when disabled.
func (p *pipeline) Preview() *mjpeg.Stream {
	return p.preview
}

// Run processes frames until the input ends or ctx is cancelled.
func (p *pipeline) Run(ctx context.Context) error {
	img := gocv.NewMat()
	defer img.Close()

	for {
		if ctx.Err() != nil {
			p.logger.Info("Cancelled by context")
			return nil
		}
		if !p.capture.Read(&img) {
			p.logger.Info("Input ended", "input", p.cfg.Input.Path, "frames", p.detector.Frames())
			return nil
		}
		if img.Empty() {
			p.logger.Debug("Empty frame received, skipping", "input", p.cfg.Input.Path)
			continue
		}
		if err := p.process(ctx, &img); err != nil {
			return err
		}
	}
}

// process handles one frame. Detection failures only drop the frame; output failures stop the
// loop.
func (p *pipeline) process(ctx context.Context, img *gocv.Mat) error {
	width, height := img.Cols(), img.Rows()
	frame := images.Frame{
		Data:   img.ToBytes(),
		Width:  width,
		Height: height,
		Order:  p.order,
	}
	res := p.detector.Process(ctx, frame)

	annotate.Draw(img, res.Boxes, p.labels, p.palette)

	if err := p.write(img); err != nil {
		return err
	}
	p.stream(img)

	report := sink.NewReport(p.detector.Frames(), width, height, res.Boxes, p.labels)
	if err := p.sinks.Publish(ctx, report); err != nil {
		p.logger.Error("Can't publish report", "frame", report.Frame, "error", err)
	}
	return nil
}

// write appends the frame to the output video, opening it on the first frame.
func (p *pipeline) write(img *gocv.Mat) error {
	if p.cfg.Output.Path == "" {
		return nil
	}
	if p.writer == nil {
		w, err := gocv.VideoWriterFile(p.cfg.Output.Path, p.cfg.Output.Codec, p.cfg.Output.FPS, img.Cols(), img.Rows(), true)
		if err != nil {
			return errors.Wrapf(err, "can't open output %s", p.cfg.Output.Path)
		}
		p.writer = w
		p.logger.Info("Writing output", "path", p.cfg.Output.Path, "codec", p.cfg.Output.Codec, "fps", p.cfg.Output.FPS)
	}
	if err := p.writer.Write(*img); err != nil {
		return errors.Wrapf(err, "can't write output %s", p.cfg.Output.Path)
	}
	return nil
}

// stream pushes the frame to the MJPEG preview.
func (p *pipeline) stream(img *gocv.Mat) {
	if p.preview == nil {
		return
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		p.logger.Error("Can't encode frame", "error", err)
		return
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	p.preview.UpdateJPEG(data)
}

// Close releases every resource the pipeline opened.
func (p *pipeline) Close() {
	if p.capture != nil {
		p.capture.Close()
	}
	if p.writer != nil {
		p.writer.Close()
	}
	if p.sinks != nil {
		if err := p.sinks.Close(); err != nil {
			p.logger.Error("Can't close sinks", "error", err)
		}
	}
	if p.detector != nil {
		p.detector.Close()
	}
	if p.session != nil {
		if err := p.session.Close(); err != nil {
			p.logger.Error("Can't close session", "error", err)
		}
	}
}
