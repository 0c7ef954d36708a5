package receipt

import (
	"image"

	"go.uber.org/zap"

	imgInternal "github.com/AlexStarov/escpos-print-agent/image"
	logInternal "github.com/AlexStarov/escpos-print-agent/log"
)

// PipelineOptions tune logo handling.
type PipelineOptions struct {
	// RawLogoMaxWidth bounds logos sent as rasters, in dots.
	RawLogoMaxWidth int
	Threshold       int
	// MaxPixels bounds the declared size of a logo; see image.DecodeOptions.
	MaxPixels int
}

// Pipeline renders jobs in either mode. A logo that fails to decode is
// left out; it never fails the job.
type Pipeline struct {
	opts       PipelineOptions
	converter  *imgInternal.Converter
	compositor *Compositor
}

func NewPipeline(opts PipelineOptions, compositor *Compositor) *Pipeline {
	if opts.RawLogoMaxWidth <= 0 {
		opts.RawLogoMaxWidth = 384
	}
	return &Pipeline{
		opts:       opts,
		converter:  imgInternal.NewConverter(opts.Threshold),
		compositor: compositor,
	}
}

// Output is a rendered job: Raw for ModeRaw, Page for ModeRendered.
type Output struct {
	Mode Mode
	Raw  []byte
	Page *image.RGBA
}

func (p *Pipeline) Render(job Job) Output {
	switch job.Mode {
	case ModeRendered:
		return Output{Mode: ModeRendered, Page: p.compositor.Compose(job.Lines(), p.pageLogo(job))}
	default:
		var logo []byte
		if job.IncludeLogo {
			logo = p.LogoRaster(job.Logo)
		}
		return Output{Mode: ModeRaw, Raw: Assemble(job, logo)}
	}
}

// LogoRaster decodes and rasterizes a logo for the raw path. It returns
// nil when the logo cannot be used.
func (p *Pipeline) LogoRaster(encoded string) []byte {
	if encoded == "" {
		return nil
	}
	res := imgInternal.Decode(encoded, imgInternal.DecodeOptions{
		MaxWidth:  p.opts.RawLogoMaxWidth,
		MaxPixels: p.opts.MaxPixels,
	})
	if !res.OK() {
		logInternal.Warn("logo omitted", zap.Error(res.Err))
		return nil
	}
	raster := p.converter.Rasterize(res.Image)
	if len(raster) == 0 {
		logInternal.Warn("logo omitted: empty raster",
			zap.Int("width", res.Image.Bounds().Dx()), zap.Int("height", res.Image.Bounds().Dy()))
	}
	return raster
}

func (p *Pipeline) pageLogo(job Job) image.Image {
	if !job.IncludeLogo || job.Logo == "" {
		return nil
	}
	res := imgInternal.Decode(job.Logo, imgInternal.DecodeOptions{
		MaxWidth:  p.compositor.LogoWidth(),
		MaxPixels: p.opts.MaxPixels,
		KeepAlpha: true,
	})
	if !res.OK() {
		logInternal.Warn("logo omitted", zap.String("job", job.ID), zap.Error(res.Err))
		return nil
	}
	return res.Image
}
