// Package docrepo keeps a git-backed revision history of each
// organization document. Every accepted sync is committed to a
// per-organization repository so operators can inspect and recover
// earlier states of the document.
package docrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const documentFile = "document.json"

// Revision describes one recorded document state.
type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
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

// RecordRevision commits the given document bytes to the organization's
// repository, creating the repository on first use. The document is
// stored pretty-printed so revision diffs stay readable.
func (s *Service) RecordRevision(orgID string, document []byte, author, message string) (Revision, error) {
	lock := s.orgLock(orgID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(orgID)
	if err != nil {
		return Revision{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := prettyJSON(document)
	if err != nil {
		return Revision{}, fmt.Errorf("format document: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, documentFile), payload, 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", documentFile, err)
	}
	if _, err := worktree.Add(documentFile); err != nil {
		return Revision{}, fmt.Errorf("git add document: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.turnhub.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit document: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), nil
}

// History lists revisions for the organization, newest first. An
// organization that has never synced has no repository yet; that is
// reported as an empty history rather than an error.
func (s *Service) History(orgID string, limit int) ([]Revision, error) {
	lock := s.orgLock(orgID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(orgID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main branch: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
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

// DocumentAt returns the document bytes recorded by the given revision.
func (s *Service) DocumentAt(orgID, hash string) ([]byte, error) {
	lock := s.orgLock(orgID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(orgID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(documentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", documentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open document reader: %w", err)
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (s *Service) openOrInit(orgID string) (*git.Repository, error) {
	path := s.repoPath(orgID)

	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(orgID string) string {
	return filepath.Join(s.baseDir, orgID)
}

func (s *Service) orgLock(orgID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[orgID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[orgID] = lock
	return lock
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

func prettyJSON(document []byte) ([]byte, error) {
	var parsed any
	if err := json.Unmarshal(document, &parsed); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "user"
	}
	return string(runes)
}
