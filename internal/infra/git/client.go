package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	giturls "github.com/whilp/git-urls"
)

// ErrNoRemote は origin リモートが無い場合のエラー
var ErrNoRemote = errors.New("remote origin not found")

// RepoInfo はレポートのリンク生成に使うリポジトリ情報
type RepoInfo struct {
	HeadSHA string
	WebURL  string // 例: https://github.com/espressif/esp-protocols
	Root    string // ワークツリーのルート
}

// Client は Git リポジトリの参照操作を提供する
type Client struct{}

// NewClient は新しい Client を作成する
func NewClient() *Client {
	return &Client{}
}

// Resolve は path を含むリポジトリの HEAD と origin の Web URL を返す。
// origin が無い場合 WebURL は空になる。
func (c *Client) Resolve(path string) (RepoInfo, error) {
	repo, err := open(path)
	if err != nil {
		return RepoInfo{}, err
	}

	head, err := repo.Head()
	if err != nil {
		return RepoInfo{}, fmt.Errorf("failed to get HEAD: %w", err)
	}

	info := RepoInfo{HeadSHA: head.Hash().String()}
	if wt, err := repo.Worktree(); err == nil {
		info.Root = wt.Filesystem.Root()
	}
	webURL, err := originWebURL(repo)
	if err != nil && !errors.Is(err, ErrNoRemote) {
		return RepoInfo{}, err
	}
	info.WebURL = webURL
	return info, nil
}

// ResolveRef はブランチ名・タグ名・コミットハッシュをコミットハッシュに解決する
func (c *Client) ResolveRef(path, ref string) (string, error) {
	repo, err := open(path)
	if err != nil {
		return "", err
	}
	hash, err := resolveRef(repo, ref)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// PathPrefix は Root から path までの相対パスをスラッシュ区切りで返す
func (i RepoInfo) PathPrefix(path string) string {
	if i.Root == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	root, err := filepath.EvalSymlinks(i.Root)
	if err != nil {
		root = i.Root
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// WebURL は Git URL をブラウザで開ける https URL に変換する
// 例: git@github.com:user/repo.git -> https://github.com/user/repo
func WebURL(gitURL string) (string, error) {
	u, err := giturls.Parse(gitURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse git URL: %w", err)
	}

	hostname := u.Hostname()
	if hostname == "" {
		hostname = u.Host
	}
	if hostname == "" {
		return "", fmt.Errorf("git URL has no host: %s", gitURL)
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".git")

	return "https://" + hostname + "/" + path, nil
}

func open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

func originWebURL(repo *git.Repository) (string, error) {
	remote, err := repo.Remote("origin")
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", ErrNoRemote
		}
		return "", fmt.Errorf("failed to get remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", ErrNoRemote
	}
	return WebURL(urls[0])
}

func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if ref == "" || ref == "HEAD" {
		headRef, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to get HEAD: %w", err)
		}
		return headRef.Hash(), nil
	}

	names := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewRemoteReferenceName("origin", ref),
		plumbing.NewTagReferenceName(ref),
	}
	for _, name := range names {
		if r, err := repo.Reference(name, true); err == nil {
			return r.Hash(), nil
		}
	}

	hash := plumbing.NewHash(ref)
	if !hash.IsZero() {
		if _, err := repo.CommitObject(hash); err == nil {
			return hash, nil
		}
	}

	return plumbing.ZeroHash, fmt.Errorf("failed to resolve ref: %s", ref)
}
