package securitylog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/park285/llm-kakao-bots/risk-guard-go/internal/risk"
)

const (
	eventLogFile   = "security_events.log"
	projectsDir    = "projects"
	maxLineBytes   = 1 << 20
	filePermission = 0o644
	dirPermission  = 0o755
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidProjectID 는 프로젝트 ID 가 경로 요소로 안전한지 검사한다.
func ValidProjectID(projectID string) bool {
	return projectID != "." && projectID != ".." && projectIDPattern.MatchString(projectID)
}

// FileStore 는 JSONL 추가 전용 파일 저장소다.
// 전역: <dir>/security_events.log, 프로젝트: <dir>/projects/<id>/security_events.log
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore 는 dir 아래에 파일 저장소를 만든다. 디렉터리는 첫 기록 시 생성된다.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: security log dir is empty", risk.ErrConfiguration)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) globalPath() string {
	return filepath.Join(s.dir, eventLogFile)
}

func (s *FileStore) projectPath(projectID string) string {
	return filepath.Join(s.dir, projectsDir, projectID, eventLogFile)
}

func (s *FileStore) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[path] = lock
	}
	return lock
}

// Append 는 전역 파일과 프로젝트 파일에 context 를 달리해 한 줄씩 기록한다.
// 유효하지 않은 프로젝트 ID 는 전역에만 기록하고 ErrLogWrite 를 반환한다.
func (s *FileStore) Append(_ context.Context, event Event) error {
	global := event
	global.Context = ScopeGlobal
	var errs []error
	if err := s.appendLine(s.globalPath(), global); err != nil {
		errs = append(errs, err)
	}

	if !ValidProjectID(event.ProjectID) {
		errs = append(errs, fmt.Errorf("%w: invalid project id %q", risk.ErrLogWrite, event.ProjectID))
		return errors.Join(errs...)
	}

	project := event
	project.Context = ScopeProject
	if err := s.appendLine(s.projectPath(event.ProjectID), project); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *FileStore) appendLine(path string, event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", risk.ErrLogWrite, err)
	}
	line = append(line, '\n')

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("%w: create log dir: %v", risk.ErrLogWrite, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", risk.ErrLogWrite, path, err)
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: write %s: %v", risk.ErrLogWrite, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", risk.ErrLogWrite, path, err)
	}
	return nil
}

func (s *FileStore) streamPath(projectID string) (string, error) {
	if projectID == "" {
		return s.globalPath(), nil
	}
	if !ValidProjectID(projectID) {
		return "", fmt.Errorf("invalid project id %q", projectID)
	}
	return s.projectPath(projectID), nil
}

// scan 은 스트림을 처음부터 읽어 해석 가능한 이벤트마다 fn 을 호출한다. 손상된 줄 수를 반환한다.
func (s *FileStore) scan(path string, fn func(Event)) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	skipped := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			skipped++
			continue
		}
		fn(event)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("scan %s: %w", path, err)
	}

	if skipped > 0 && s.logger != nil {
		s.logger.Warn("security_log_malformed_lines", "path", path, "skipped", skipped)
	}
	return skipped, nil
}

// Recent 는 조건에 맞는 최근 이벤트를 최신순으로 반환한다.
func (s *FileStore) Recent(_ context.Context, query Query) ([]Event, error) {
	path, err := s.streamPath(query.ProjectID)
	if err != nil {
		return nil, err
	}
	limit := normalizeLimit(query.Limit)

	window := make([]Event, 0, limit)
	next := 0
	if _, err := s.scan(path, func(event Event) {
		if event.RiskLevel < query.MinRisk {
			return
		}
		if len(window) < limit {
			window = append(window, event)
			return
		}
		window[next] = event
		next = (next + 1) % limit
	}); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		events = append(events, window[(next+i)%len(window)])
	}
	return events, nil
}

// Statistics 는 since 이후 이벤트를 집계한다.
func (s *FileStore) Statistics(_ context.Context, projectID string, since time.Time) (Statistics, error) {
	path, err := s.streamPath(projectID)
	if err != nil {
		return Statistics{}, err
	}

	acc := newStatsAccumulator()
	if _, err := s.scan(path, func(event Event) {
		if event.Timestamp.Before(since) {
			return
		}
		acc.add(event.RiskLevel, string(event.CheckMethod), event.UserID, 1)
	}); err != nil {
		return Statistics{}, err
	}
	return acc.result(), nil
}

// Close 는 열린 핸들이 없으므로 아무것도 하지 않는다.
func (s *FileStore) Close() error {
	return nil
}
