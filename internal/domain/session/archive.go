package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/domain/session/store"
	platerr "voicepipe-server-go/internal/platform/errors"
)

// Archive keeps the append-only on-disk records: one JSON file per
// finalized result, one per successful transcription, one binary file per
// synthesized utterance. Records are never rewritten after creation.
type Archive struct {
	resultsDir     string
	transcriptsDir string
	ttsDir         string
}

// NewArchive creates the record directories if needed.
func NewArchive(resultsDir, transcriptsDir, ttsDir string) (*Archive, error) {
	for _, dir := range []string{resultsDir, transcriptsDir, ttsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, platerr.Wrap(platerr.KindStorage, "archive", "create record directory", err)
		}
	}
	return &Archive{
		resultsDir:     resultsDir,
		transcriptsDir: transcriptsDir,
		ttsDir:         ttsDir,
	}, nil
}

// WriteResult persists one finalized result record.
func (a *Archive) WriteResult(result model.Result) error {
	return a.writeRecord(a.resultsDir, result)
}

// WriteTranscript persists a transcription-only record, available to
// pollers before synthesis completes.
func (a *Archive) WriteTranscript(result model.Result) error {
	return a.writeRecord(a.transcriptsDir, result)
}

func (a *Archive) writeRecord(dir string, result model.Result) error {
	if result.SessionID == "" {
		return platerr.New(platerr.KindStorage, "archive", "session id required")
	}
	data, err := sonic.MarshalIndent(result, "", "  ")
	if err != nil {
		return platerr.Wrap(platerr.KindStorage, "archive", "encode record", err)
	}
	path := filepath.Join(dir, result.SessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return platerr.Wrap(platerr.KindStorage, "archive", "write record", err)
	}
	return nil
}

// Find scans transcript records before finalized records and returns the
// first match. store.ErrNotFound means the session is unknown or still
// processing.
func (a *Archive) Find(sessionID string) (model.Result, error) {
	if !validRef(sessionID) {
		return model.Result{}, store.ErrNotFound
	}
	for _, dir := range []string{a.transcriptsDir, a.resultsDir} {
		path := filepath.Join(dir, sessionID+".json")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return model.Result{}, platerr.Wrap(platerr.KindStorage, "archive", "read record", err)
		}
		var result model.Result
		if err := sonic.Unmarshal(data, &result); err != nil {
			return model.Result{}, platerr.Wrap(platerr.KindStorage, "archive", "decode record", err)
		}
		return result, nil
	}
	return model.Result{}, store.ErrNotFound
}

// SaveTTS stores one synthesized utterance and returns its reference.
func (a *Archive) SaveTTS(sessionID string, audio []byte, format string) (string, error) {
	if format == "" {
		format = "wav"
	}
	ref := fmt.Sprintf("%s.%s", sessionID, format)
	if !validRef(ref) {
		return "", platerr.New(platerr.KindStorage, "archive", "invalid tts reference")
	}
	if err := os.WriteFile(filepath.Join(a.ttsDir, ref), audio, 0o644); err != nil {
		return "", platerr.Wrap(platerr.KindStorage, "archive", "write tts audio", err)
	}
	return ref, nil
}

// TTSPath resolves a reference to a file inside the tts directory. The
// reference must be a bare filename, path separators are rejected.
func (a *Archive) TTSPath(ref string) (string, error) {
	if !validRef(ref) {
		return "", platerr.New(platerr.KindInput, "archive", "invalid tts reference")
	}
	path := filepath.Join(a.ttsDir, ref)
	if _, err := os.Stat(path); err != nil {
		return "", platerr.Wrap(platerr.KindStorage, "archive", "tts audio not found", err)
	}
	return path, nil
}

func validRef(ref string) bool {
	if ref == "" || ref == "." || ref == ".." {
		return false
	}
	if strings.ContainsAny(ref, `/\`) {
		return false
	}
	return filepath.Base(ref) == ref
}
