// Package pdstest runs an in-memory Bluesky PDS over httptest for tests.
package pdstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"skeeterdeleter/pkg/bluesky"
)

const (
	DefaultDID    = "did:plc:testaccount"
	DefaultHandle = "tester.bsky.social"
	AccessToken   = "access-token"
	RefreshToken  = "refresh-token"
)

// Failure is a canned error response
type Failure struct {
	Status int
	Error  string
	// RetryAfter, when set, is sent as a Retry-After header in seconds
	RetryAfter int
}

// Server is a fake PDS. Feeds are served page by page; the cursor returned
// after page i is CursorAfter(i), which sorts lower as i grows.
type Server struct {
	*httptest.Server

	DID    string
	Handle string

	mu          sync.Mutex
	likes       [][]bluesky.FeedViewPost
	posts       [][]bluesky.FeedViewPost
	repo        []byte
	blobs       map[string][]byte
	blobOrder   []string
	calls       map[string]int
	cursors     map[string][]string
	deleted     []string
	deleteFail  map[string]Failure
	injected    map[string][]Failure
	accessToken string
}

// New starts a fake PDS that is closed when the test ends
func New(t testing.TB) *Server {
	s := &Server{
		DID:         DefaultDID,
		Handle:      DefaultHandle,
		blobs:       make(map[string][]byte),
		calls:       make(map[string]int),
		cursors:     make(map[string][]string),
		deleteFail:  make(map[string]Failure),
		injected:    make(map[string][]Failure),
		accessToken: AccessToken,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// CursorAfter is the cursor the server returns after the page at index i
func CursorAfter(i int) string {
	return fmt.Sprintf("c%05d", 99999-i)
}

// SetLikes sets the pages of the likes feed
func (s *Server) SetLikes(pages ...[]bluesky.FeedViewPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.likes = pages
}

// SetPosts sets the pages of the author feed
func (s *Server) SetPosts(pages ...[]bluesky.FeedViewPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = pages
}

// SetRepo sets the CAR bytes returned by getRepo
func (s *Server) SetRepo(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repo = data
}

// AddBlob stores a blob listed by listBlobs
func (s *Server) AddBlob(cid string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[cid]; !ok {
		s.blobOrder = append(s.blobOrder, cid)
	}
	s.blobs[cid] = data
}

// FailDelete makes deleteRecord fail for the given record URI every time
func (s *Server) FailDelete(uri string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFail[uri] = f
}

// Inject queues failures returned by the next calls to op, one per call
func (s *Server) Inject(op string, failures ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected[op] = append(s.injected[op], failures...)
}

// ExpireAccessToken makes the current access token fail with ExpiredToken
// until the session is refreshed
func (s *Server) ExpireAccessToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = "rotated-" + s.accessToken
}

// Calls returns how many times op was called
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// RequestedCursors returns the cursors sent to a feed op, in order
func (s *Server) RequestedCursors(op string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cursors[op]...)
}

// Deleted returns the record URIs deleted so far
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/xrpc/")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++

	if queue := s.injected[op]; len(queue) > 0 {
		s.injected[op] = queue[1:]
		writeError(w, queue[0])
		return
	}

	switch op {
	case bluesky.OpCreateSession:
		s.createSession(w, r)
		return
	case bluesky.OpRefreshSession:
		if r.Header.Get("Authorization") != "Bearer "+RefreshToken {
			writeError(w, Failure{Status: http.StatusBadRequest, Error: "InvalidToken"})
			return
		}
		s.accessToken = AccessToken + "-" + strconv.Itoa(s.calls[op])
		s.writeSession(w)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+s.accessToken {
		writeError(w, Failure{Status: http.StatusBadRequest, Error: "ExpiredToken"})
		return
	}

	switch op {
	case bluesky.OpGetActorLikes:
		s.feed(w, r, op, s.likes)
	case bluesky.OpGetAuthorFeed:
		s.feed(w, r, op, s.posts)
	case bluesky.OpDeleteRecord:
		s.deleteRecord(w, r)
	case bluesky.OpGetRepo:
		w.Header().Set("Content-Type", "application/vnd.ipld.car")
		_, _ = w.Write(s.repo)
	case bluesky.OpListBlobs:
		s.listBlobs(w, r)
	case bluesky.OpGetBlob:
		data, ok := s.blobs[r.URL.Query().Get("cid")]
		if !ok {
			writeError(w, Failure{Status: http.StatusBadRequest, Error: "BlobNotFound"})
			return
		}
		_, _ = w.Write(data)
	default:
		writeError(w, Failure{Status: http.StatusNotImplemented, Error: "MethodNotImplemented"})
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeError(w, Failure{Status: http.StatusBadRequest, Error: "InvalidRequest"})
		return
	}
	if body.Password == "wrong" {
		writeError(w, Failure{Status: http.StatusUnauthorized, Error: "AuthenticationRequired"})
		return
	}
	s.writeSession(w)
}

func (s *Server) writeSession(w http.ResponseWriter) {
	writeJSON(w, map[string]string{
		"accessJwt":  s.accessToken,
		"refreshJwt": RefreshToken,
		"did":        s.DID,
		"handle":     s.Handle,
	})
}

// feed serves page i for the cursor returned after page i-1. The last page
// comes back without a cursor.
func (s *Server) feed(w http.ResponseWriter, r *http.Request, op string, pages [][]bluesky.FeedViewPost) {
	cursor := r.URL.Query().Get("cursor")
	s.cursors[op] = append(s.cursors[op], cursor)

	index := 0
	if cursor != "" {
		index = -1
		for i := range pages {
			if CursorAfter(i) == cursor {
				index = i + 1
				break
			}
		}
		if index < 0 {
			writeError(w, Failure{Status: http.StatusBadRequest, Error: "InvalidRequest"})
			return
		}
	}

	resp := bluesky.FeedResponse{Feed: []bluesky.FeedViewPost{}}
	if index < len(pages) {
		resp.Feed = pages[index]
		if index < len(pages)-1 {
			resp.Cursor = CursorAfter(index)
		}
	}
	writeJSON(w, resp)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Repo       string `json:"repo"`
		Collection string `json:"collection"`
		RKey       string `json:"rkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, Failure{Status: http.StatusBadRequest, Error: "InvalidRequest"})
		return
	}
	uri := fmt.Sprintf("at://%s/%s/%s", body.Repo, body.Collection, body.RKey)
	if f, ok := s.deleteFail[uri]; ok {
		writeError(w, f)
		return
	}
	s.deleted = append(s.deleted, uri)
	writeJSON(w, map[string]string{})
}

func (s *Server) listBlobs(w http.ResponseWriter, r *http.Request) {
	const pageSize = 2
	start := 0
	if c := r.URL.Query().Get("cursor"); c != "" {
		start, _ = strconv.Atoi(c)
	}
	end := min(start+pageSize, len(s.blobOrder))

	resp := bluesky.ListBlobsResponse{CIDs: append([]string{}, s.blobOrder[start:end]...)}
	if end < len(s.blobOrder) {
		resp.Cursor = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, f Failure) {
	w.Header().Set("Content-Type", "application/json")
	if f.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(f.RetryAfter))
	}
	w.WriteHeader(f.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   f.Error,
		"message": http.StatusText(f.Status),
	})
}
