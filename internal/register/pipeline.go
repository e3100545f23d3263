package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"georeg/internal/cam"
	"georeg/internal/canv"
	"georeg/internal/config"
	"georeg/internal/geo"
	"georeg/internal/journal"
	"georeg/internal/logging"
	"georeg/internal/p3dr"
	"georeg/internal/preflight"
	"georeg/internal/runlock"
)

// LowConfidenceFOM is the figure-of-merit floor below which a
// successful verdict is annotated low-confidence instead of success.
const LowConfidenceFOM = 0.5

// Request describes one registration run.
type Request struct {
	// InputPath names the source .canv file.
	InputPath string
	// OutputName overrides the output file name. Defaults to the input
	// file's base name.
	OutputName string
	// References are the reference dataset paths the stream is opened
	// against.
	References []string
	// Command and Tag record this invocation in the output's command
	// history.
	Command string
	Tag     string
}

// Summary reports how a run went.
type Summary struct {
	RunID            int64
	OutputPath       string
	FrameCount       int
	Committed        int
	Succeeded        int
	Failed           int
	MeanFOM          float64
	MeanDisplacement float64
	Server           p3dr.Version
	StreamID         int64
	Elapsed          time.Duration
}

// Pipeline runs registrations end to end: preflight, server
// connection, scheduling, output writing, and journaling.
type Pipeline struct {
	cfg     *config.Config
	store   *journal.Store
	logger  *slog.Logger
	rootLog *slog.Logger
}

// NewPipeline binds a pipeline to its configuration and journal.
func NewPipeline(cfg *config.Config, store *journal.Store, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("pipeline requires config and journal")
	}
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, logging.ComponentWriter),
		rootLog: logger,
	}, nil
}

// Run executes one registration run. A run whose session dies midway
// still leaves a valid output holding the contiguous prefix of settled
// frames, and the journal records how far it got.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Summary, error) {
	started := time.Now()

	if failed := preflight.Failures(preflight.RunAll(p.cfg, req.InputPath, req.References)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, f := range failed {
			details = append(details, fmt.Sprintf("%s: %s", f.Name, f.Detail))
		}
		return nil, fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
	}

	lock, err := runlock.Acquire(p.cfg.Paths.OutputDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	playback, err := canv.Open(req.InputPath)
	if err != nil {
		return nil, err
	}
	defer playback.Close()

	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	streamID, err := client.OpenStream(req.References)
	if err != nil {
		return nil, err
	}
	refs, err := client.ListReferences(streamID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("stream opened",
		logging.Int64(logging.FieldStream, streamID),
		logging.Int("references", len(refs)))

	outputPath, err := p.outputPath(req)
	if err != nil {
		return nil, err
	}
	writer, err := p.newWriter(outputPath, playback, req)
	if err != nil {
		return nil, err
	}

	runID, err := p.store.BeginRun(ctx, journal.RunInfo{
		InputPath:      req.InputPath,
		OutputPath:     outputPath,
		ServerURL:      client.URL(),
		ServerBranch:   client.Version().Branch,
		ServerRevision: client.Version().Revision,
		StreamID:       streamID,
		FrameCount:     playback.FrameCount(),
	})
	if err != nil {
		writer.Abort()
		return nil, err
	}
	log := p.logger.With(logging.Int64(logging.FieldRun, runID))
	log.Info("run started",
		logging.String("input", req.InputPath),
		logging.String("output", outputPath),
		logging.Int("frames", playback.FrameCount()))

	scheduler, err := NewScheduler(client.StartSession(streamID), SchedulerConfig{
		InFlight:       p.cfg.Registration.InFlight,
		MaxAttempts:    p.cfg.Registration.MaxAttempts,
		AttemptTimeout: time.Duration(p.cfg.Registration.AttemptTimeout) * time.Second,
		Logger:         p.rootLog,
	})
	if err != nil {
		writer.Abort()
		return nil, err
	}

	runErr := scheduler.Run(ctx, playback, func(out Outcome) error {
		return p.commit(ctx, log, writer, runID, out)
	})

	committed := writer.Committed()
	if committed == 0 {
		writer.Abort()
	} else if err := writer.Close(); err != nil && runErr == nil {
		runErr = err
	}

	status, errMsg := journal.RunCompleted, ""
	if runErr != nil {
		status, errMsg = journal.RunFailed, runErr.Error()
	}
	if err := p.store.FinishRun(ctx, runID, committed, status, errMsg); err != nil && runErr == nil {
		runErr = err
	}

	stats, statsErr := p.store.Stats(ctx, runID)
	if statsErr != nil && runErr == nil {
		runErr = statsErr
	}

	summary := &Summary{
		RunID:            runID,
		OutputPath:       outputPath,
		FrameCount:       playback.FrameCount(),
		Committed:        committed,
		Succeeded:        stats.Succeeded,
		Failed:           stats.Failed,
		MeanFOM:          stats.MeanFOM,
		MeanDisplacement: stats.MeanDisplacement,
		Server:           client.Version(),
		StreamID:         streamID,
		Elapsed:          time.Since(started),
	}
	if runErr != nil {
		log.Error("run failed",
			logging.Int("committed", committed),
			logging.Error(runErr))
		return summary, runErr
	}
	log.Info("run completed",
		logging.Int("committed", committed),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Float64("mean_fom", summary.MeanFOM),
		logging.Float64("mean_displacement_m", summary.MeanDisplacement),
		logging.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// commit annotates one settled frame, appends it to the output, and
// journals its outcome.
func (p *Pipeline) commit(ctx context.Context, log *slog.Logger, writer *canv.Writer, runID int64, out Outcome) error {
	meta := out.Frame.Meta
	rec := journal.FrameRecord{FrameID: int64(out.Frame.Index), Attempts: out.Attempts}

	switch {
	case out.Err != nil:
		meta.Reg = &canv.Registration{Status: canv.RegFailed, Error: out.Err.Error()}
		rec.Status = journal.FrameFailed
		rec.Error = out.Err.Error()
	case out.Result.Failed():
		meta.Reg = &canv.Registration{Status: canv.RegFailed, Error: out.Result.ServerError}
		rec.Status = journal.FrameFailed
		rec.Error = out.Result.ServerError
	default:
		if _, err := cam.FromCanonic(out.Result.Pose); err != nil {
			// The server answered success but the corrected pose cannot
			// back a camera; treat it like a rejection.
			reason := fmt.Sprintf("unusable corrected pose: %v", err)
			meta.Reg = &canv.Registration{Status: canv.RegFailed, Error: reason}
			rec.Status = journal.FrameFailed
			rec.Error = reason
			break
		}
		displacement := poseDisplacement(out.Frame.Meta.Cam, out.Result.Pose)
		status := canv.RegSuccess
		if out.Result.FigureOfMerit < LowConfidenceFOM {
			status = canv.RegLowConfidence
		}
		meta.Cam = out.Result.Pose
		meta.Reg = &canv.Registration{Status: status, FOM: out.Result.FigureOfMerit}
		rec.Status = journal.FrameSucceeded
		rec.FOM = out.Result.FigureOfMerit
		rec.Displacement = displacement
	}

	if err := writer.WriteFrame(out.Frame.Index, meta); err != nil {
		return err
	}
	if err := p.store.RecordFrame(ctx, runID, rec); err != nil {
		return err
	}
	log.Debug("frame committed",
		logging.Int64(logging.FieldFrame, rec.FrameID),
		logging.Int(logging.FieldAttempt, rec.Attempts),
		logging.String("status", string(rec.Status)),
		logging.Float64("fom", rec.FOM))
	return nil
}

// connect dials a public server or launches a private one, per the
// configured address form.
func (p *Pipeline) connect(ctx context.Context) (*p3dr.Client, error) {
	opts := p3dr.Options{
		ConnectTimeout: time.Duration(p.cfg.Server.ConnectTimeout) * time.Second,
		Logger:         p.rootLog,
	}
	if p.cfg.Server.PrivateServer() {
		return p3dr.ConnectPrivate(ctx, p.cfg.Server.Address, p.cfg.Server.LogSeverity,
			p3dr.LaunchOptions{StartupAttempts: p.cfg.Server.StartupAttempts}, opts)
	}
	return p3dr.Connect(ctx, strings.TrimPrefix(p.cfg.Server.Address, "tcp://"), opts)
}

func (p *Pipeline) outputPath(req Request) (string, error) {
	name := req.OutputName
	if name == "" {
		name = filepath.Base(req.InputPath)
	}
	if filepath.Ext(name) != ".canv" {
		return "", fmt.Errorf("output name %q must carry the .canv suffix", name)
	}
	path := filepath.Join(p.cfg.Paths.OutputDir, name)
	abs, err := filepath.Abs(req.InputPath)
	if err != nil {
		return "", err
	}
	if path == abs {
		return "", fmt.Errorf("output %q would overwrite the input", path)
	}
	return path, nil
}

// newWriter opens the output metadata file, linking the input's
// imagery archive by relative path and extending its command history.
func (p *Pipeline) newWriter(outputPath string, playback *canv.Playback, req Request) (*canv.Writer, error) {
	imsAbs, err := filepath.Abs(playback.ImsPath())
	if err != nil {
		return nil, err
	}
	imsRel, err := filepath.Rel(filepath.Dir(outputPath), imsAbs)
	if err != nil {
		return nil, fmt.Errorf("relate imagery path: %w", err)
	}

	width, height := playback.ImageSize()
	proc := playback.Proc()
	if req.Command != "" {
		proc = canv.AppendCommand(proc, req.Command, req.Tag)
	}
	return canv.NewWriter(outputPath, canv.WriterOptions{
		Planned: playback.FrameCount(),
		Width:   width,
		Height:  height,
		ImsPath: imsRel,
		Proc:    proc,
	})
}

func poseDisplacement(before, after canv.Pose) float64 {
	return geo.Displacement(
		geo.Geodetic{Lat: before.Pos[0], Lon: before.Pos[1], Height: -before.Pos[2]},
		geo.Geodetic{Lat: after.Pos[0], Lon: after.Pos[1], Height: -after.Pos[2]},
	)
}
