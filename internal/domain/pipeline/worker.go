package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/domain/notify"
	"voicepipe-server-go/internal/domain/session"
	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/platform/observability"
	"voicepipe-server-go/internal/util"
	"voicepipe-server-go/internal/utils"
)

// StageTimeouts bounds each adapter call so one slow job cannot stall a
// worker forever.
type StageTimeouts struct {
	Denoise time.Duration
	ASR     time.Duration
	TTS     time.Duration
}

// StageLocks serializes adapter calls per capability across workers. The
// underlying capabilities are treated as non-reentrant.
type StageLocks struct {
	denoise sync.Mutex
	asr     sync.Mutex
	tts     sync.Mutex
}

// Worker drains the queue and runs each job through the stage machine:
// dequeue, noise-reduce, transcribe, synthesize, finalize. Finalization
// always runs, whichever stage failed.
type Worker struct {
	queue    *Queue
	registry *capability.Registry
	sessions *session.Service
	notifier *notify.Notifier
	locks    *StageLocks
	timeouts StageTimeouts
	logger   *utils.Logger
}

// NewWorker wires one worker loop. Workers sharing a queue must share the
// same StageLocks.
func NewWorker(
	queue *Queue,
	registry *capability.Registry,
	sessions *session.Service,
	notifier *notify.Notifier,
	locks *StageLocks,
	timeouts StageTimeouts,
	logger *utils.Logger,
) *Worker {
	if locks == nil {
		locks = &StageLocks{}
	}
	return &Worker{
		queue:    queue,
		registry: registry,
		sessions: sessions,
		notifier: notifier,
		locks:    locks,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Run blocks on the queue until the context ends or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, util.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		w.processSafe(ctx, job)
	}
}

// processSafe keeps the loop alive when a single job panics.
func (w *Worker) processSafe(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorTag("PIPELINE", "job %s panicked: %v", job.SessionID, r)
			result := model.Result{
				SessionID:    job.SessionID,
				Status:       model.StatusError,
				ErrorMessage: fmt.Sprintf("internal processing failure: %v", r),
				CreatedAt:    time.Now(),
			}
			w.finalize(ctx, job, result)
		}
	}()
	w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job Job) {
	start := time.Now()
	_, endSpan := observability.StartSpan(ctx, "pipeline", "process")

	w.logger.InfoTag("PIPELINE", "job %s dequeued", job.SessionID)

	result := model.Result{
		SessionID: job.SessionID,
		CreatedAt: time.Now(),
	}

	original, decodeErr := w.loadAudio(job)

	audio := original
	if decodeErr == nil {
		audio = w.denoiseStage(ctx, job, original)
	}

	transcription, asrErr := w.transcribeStage(ctx, job, audio, decodeErr)
	if asrErr != nil {
		result.Status = model.StatusError
		result.ErrorMessage = asrErr.Error()
		result.ProcessingTime = time.Since(start).Seconds()
		w.finalize(ctx, job, result)
		endSpan(asrErr)
		return
	}

	text := transcription.Text
	duration := transcription.DurationSeconds
	result.Status = model.StatusSuccess
	result.Transcription = &text
	result.TranscriptionDuration = &duration
	result.ProcessingTime = time.Since(start).Seconds()

	// transcription-only record for pollers racing synthesis
	if err := w.sessions.SaveTranscript(ctx, result); err != nil {
		w.logger.WarnTag("PIPELINE", "job %s: transcript record failed: %v", job.SessionID, err)
	}

	ref, ttsErr := w.synthesizeStage(ctx, job, text)
	if ttsErr != nil {
		// partial success: the transcription survives
		result.TTSError = ttsErr.Error()
	} else {
		result.TTSAudioRef = ref
	}

	result.ProcessingTime = time.Since(start).Seconds()
	w.finalize(ctx, job, result)
	w.logger.InfoTiming("job %s finished in %.2fs", job.SessionID, result.ProcessingTime)
	endSpan(nil)
}

func (w *Worker) loadAudio(job Job) (util.Audio, error) {
	data, err := os.ReadFile(job.AudioPath)
	if err != nil {
		return util.Audio{}, fmt.Errorf("read submission: %w", err)
	}
	audio, err := util.DecodeWAV(data)
	if err != nil {
		return util.Audio{}, fmt.Errorf("decode submission: %w", err)
	}
	return audio, nil
}

// denoiseStage is best-effort: any failure passes the original audio on.
func (w *Worker) denoiseStage(ctx context.Context, job Job, original util.Audio) util.Audio {
	provider, ready := w.registry.DenoiseProvider()
	if !ready {
		w.logger.DebugTag("DENOISE", "job %s: capability not ready, passing through", job.SessionID)
		return original
	}

	w.locks.denoise.Lock()
	defer w.locks.denoise.Unlock()

	stageCtx, cancel := w.stageContext(ctx, w.timeouts.Denoise)
	defer cancel()

	resampled := util.Resample(original, provider.SampleRate())
	cleaned, err := provider.Process(stageCtx, resampled)
	if err != nil {
		w.logger.WarnTag("DENOISE", "job %s: %v, passing original audio through", job.SessionID, err)
		return original
	}
	return cleaned
}

// transcribeStage hard-fails the job on any error.
func (w *Worker) transcribeStage(ctx context.Context, job Job, audio util.Audio, decodeErr error) (capability.Transcription, error) {
	if decodeErr != nil {
		return capability.Transcription{}, decodeErr
	}

	provider, ready := w.registry.ASRProvider()
	if !ready {
		return capability.Transcription{}, capability.ErrUnavailable(capability.ASR)
	}

	w.locks.asr.Lock()
	defer w.locks.asr.Unlock()

	stageCtx, cancel := w.stageContext(ctx, w.timeouts.ASR)
	defer cancel()

	transcription, err := provider.Transcribe(stageCtx, audio)
	if err != nil {
		return capability.Transcription{}, err
	}
	w.logger.InfoASR("job %s transcribed, %d chars", job.SessionID, len(transcription.Text))
	return transcription, nil
}

// synthesizeStage clones the voice from the original submission. Failure
// is recorded as a secondary error, never as job failure.
func (w *Worker) synthesizeStage(ctx context.Context, job Job, text string) (string, error) {
	provider, ready := w.registry.TTSProvider()
	if !ready {
		return "", capability.ErrUnavailable(capability.TTS)
	}

	voiceRef, err := os.ReadFile(job.AudioPath)
	if err != nil {
		w.logger.WarnTag("TTS", "job %s: voice reference unavailable: %v", job.SessionID, err)
		voiceRef = nil
	}

	w.locks.tts.Lock()
	defer w.locks.tts.Unlock()

	stageCtx, cancel := w.stageContext(ctx, w.timeouts.TTS)
	defer cancel()

	audio, format, err := provider.Synthesize(stageCtx, text, voiceRef)
	if err != nil {
		return "", err
	}

	ref, err := w.sessions.Archive().SaveTTS(job.SessionID, audio, format)
	if err != nil {
		return "", err
	}
	if path, perr := w.sessions.Archive().TTSPath(ref); perr == nil {
		if seconds, derr := util.ProbeDuration(path); derr == nil {
			w.logger.InfoTTS("job %s synthesized %.2fs (%d bytes) -> %s", job.SessionID, seconds, len(audio), ref)
			return ref, nil
		}
	}
	w.logger.InfoTTS("job %s synthesized %d bytes -> %s", job.SessionID, len(audio), ref)
	return ref, nil
}

// finalize writes the result, broadcasts it, and removes the transient
// upload. The store write precedes the broadcast so a pushed client can
// immediately confirm through the store.
func (w *Worker) finalize(ctx context.Context, job Job, result model.Result) {
	if err := w.sessions.SaveResult(ctx, result); err != nil {
		w.logger.ErrorTag("STORE", "job %s: result write failed: %v", job.SessionID, err)
	}

	w.notifier.Broadcast(job.SessionID, result)

	if job.AudioPath != "" {
		if err := os.Remove(job.AudioPath); err != nil && !os.IsNotExist(err) {
			w.logger.WarnTag("PIPELINE", "job %s: upload cleanup failed: %v", job.SessionID, err)
		}
	}

	observability.RecordMetric(ctx, "pipeline_jobs_finalized", 1, map[string]string{
		"status": result.Status,
	})
}

func (w *Worker) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Pool runs a fixed number of workers over one shared queue.
type Pool struct {
	workers []*Worker
}

// NewPool builds count workers sharing the queue and stage locks.
func NewPool(
	count int,
	queue *Queue,
	registry *capability.Registry,
	sessions *session.Service,
	notifier *notify.Notifier,
	timeouts StageTimeouts,
	logger *utils.Logger,
) *Pool {
	if count <= 0 {
		count = 1
	}
	locks := &StageLocks{}
	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(queue, registry, sessions, notifier, locks, timeouts, logger)
	}
	return &Pool{workers: workers}
}

// Run blocks until every worker loop returns.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		worker := w
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}
	return g.Wait()
}
