// Package history keeps a per-document git archive of committed snapshots.
// Every applied batch lands as one commit, which gives profiles an audit
// trail independent of the operation log. Archiving runs after the edit has
// already committed; failures here are reported, never propagated back.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "snapshot.json"

// CommitInfo describes one archived snapshot commit.
type CommitInfo struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitSnapshot archives the snapshot produced by one applied batch. The
// first commit for a document initializes its repo, so the archive needs no
// separate setup step before a create lands here.
func (s *Service) CommitSnapshot(docType, docID string, data map[string]any, version int64, author string) (CommitInfo, error) {
	lock := s.documentLock(docType, docID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(docType, docID)
	firstCommit := false
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return CommitInfo{}, fmt.Errorf("create repo dir: %w", err)
		}
		repo, err = git.PlainInit(path, false)
		if err != nil {
			return CommitInfo{}, fmt.Errorf("init repo: %w", err)
		}
		firstCommit = true
	} else if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	message := fmt.Sprintf("Apply batch at version %d", version)
	if firstCommit {
		message = "Create " + docType + " profile"
	}
	hash, err := writeSnapshotCommit(repo, path, data, author, message)
	if err != nil {
		return CommitInfo{}, err
	}

	if firstCommit {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
			return CommitInfo{}, fmt.Errorf("set main branch ref: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
			return CommitInfo{}, fmt.Errorf("set HEAD to main: %w", err)
		}
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists archived commits, newest first.
func (s *Service) History(docType, docID string, limit int) ([]CommitInfo, error) {
	lock := s.documentLock(docType, docID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(docType, docID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads the archived snapshot stored in a given commit.
func (s *Service) SnapshotAt(docType, docID, hash string) (map[string]any, error) {
	lock := s.documentLock(docType, docID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(docType, docID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	commitObj, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return data, nil
}

func (s *Service) repoPath(docType, docID string) string {
	return filepath.Join(s.baseDir, docType, docID)
}

func (s *Service) documentLock(docType, docID string) *sync.Mutex {
	key := docType + "/" + docID
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[key] = lock
	return lock
}

func writeSnapshotCommit(repo *git.Repository, path string, data map[string]any, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.talentpad.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:    commitObj.Hash.String(),
		Author:  commitObj.Author.Name,
		Message: commitObj.Message,
		When:    commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '.' || r == '-' || r == '_':
			return r
		case r == ' ':
			return '.'
		default:
			return -1
		}
	}, input)
	if cleaned == "" {
		return "user"
	}
	return cleaned
}
