// Package atprototest provides an in-memory PDS for tests.
package atprototest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Account is a repository owner known to the fake PDS.
type Account struct {
	Handle      string
	DID         string
	AppPassword string
}

// Server is an httptest server speaking enough XRPC for the bridge: session
// creation, handle resolution, put/list/delete records. It also serves
// did:plc documents at /<did>, so it can stand in for the PLC directory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]Account                                // by handle
	repos    map[string]map[string]map[string]json.RawMessage // did -> collection -> rkey -> value
	puts     int
	deletes  int
	extra    []json.RawMessage

	// failPut makes putRecord fail for rkeys in the set.
	failPut map[string]bool
}

// NewServer starts a fake PDS with the given accounts.
func NewServer(accounts ...Account) *Server {
	s := &Server{
		accounts: make(map[string]Account),
		repos:    make(map[string]map[string]map[string]json.RawMessage),
		failPut:  make(map[string]bool),
	}
	for _, a := range accounts {
		s.accounts[a.Handle] = a
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", s.createSession)
	mux.HandleFunc("/xrpc/com.atproto.identity.resolveHandle", s.resolveHandle)
	mux.HandleFunc("/xrpc/com.atproto.repo.putRecord", s.authed(s.putRecord))
	mux.HandleFunc("/xrpc/com.atproto.repo.deleteRecord", s.authed(s.deleteRecord))
	mux.HandleFunc("/xrpc/com.atproto.repo.listRecords", s.listRecords)
	mux.HandleFunc("/", s.didDocument)
	s.Server = httptest.NewServer(mux)
	return s
}

func writeError(w http.ResponseWriter, status int, name, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": name, "message": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	s.mu.Lock()
	acct, ok := s.accounts[in.Identifier]
	s.mu.Unlock()
	if !ok || acct.AppPassword != in.Password {
		writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "Invalid identifier or password")
		return
	}
	writeJSON(w, map[string]string{
		"did":        acct.DID,
		"handle":     acct.Handle,
		"accessJwt":  "access-" + acct.DID,
		"refreshJwt": "refresh-" + acct.DID,
	})
}

func (s *Server) resolveHandle(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	s.mu.Lock()
	acct, ok := s.accounts[handle]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Unable to resolve handle")
		return
	}
	writeJSON(w, map[string]string{"did": acct.DID})
}

func (s *Server) didDocument(w http.ResponseWriter, r *http.Request) {
	did := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.HasPrefix(did, "did:") {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"id": did,
		"service": []map[string]string{{
			"id":              "#atproto_pds",
			"type":            "AtprotoPersonalDataServer",
			"serviceEndpoint": s.URL,
		}},
	})
}

// authed rejects requests without a bearer token issued by createSession.
func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, did string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !strings.HasPrefix(token, "access-") {
			writeError(w, http.StatusUnauthorized, "AuthenticationRequired", "missing token")
			return
		}
		next(w, r, strings.TrimPrefix(token, "access-"))
	}
}

func (s *Server) putRecord(w http.ResponseWriter, r *http.Request, did string) {
	var in struct {
		Repo       string          `json:"repo"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		Record     json.RawMessage `json:"record"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	if in.Repo != did {
		writeError(w, http.StatusForbidden, "InvalidRequest", "repo does not match session")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failPut[in.RKey] {
		writeError(w, http.StatusInternalServerError, "InternalServerError", "write failed")
		return
	}
	s.put(in.Repo, in.Collection, in.RKey, in.Record)
	writeJSON(w, map[string]string{
		"uri": "at://" + in.Repo + "/" + in.Collection + "/" + in.RKey,
		"cid": "bafy" + strconv.Itoa(s.puts),
	})
}

func (s *Server) put(repo, collection, rkey string, value json.RawMessage) {
	if s.repos[repo] == nil {
		s.repos[repo] = make(map[string]map[string]json.RawMessage)
	}
	if s.repos[repo][collection] == nil {
		s.repos[repo][collection] = make(map[string]json.RawMessage)
	}
	s.repos[repo][collection][rkey] = value
}

// Seed stores a record directly, bypassing putRecord accounting.
func (s *Server) Seed(repo, collection, rkey string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(repo, collection, rkey, value)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request, did string) {
	var in struct {
		Repo       string `json:"repo"`
		Collection string `json:"collection"`
		RKey       string `json:"rkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.repos[in.Repo][in.Collection], in.RKey)
	writeJSON(w, map[string]any{})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repo, collection, cursor := q.Get("repo"), q.Get("collection"), q.Get("cursor")
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	coll := s.repos[repo][collection]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		if k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	next := ""
	if len(keys) > limit {
		keys = keys[:limit]
		next = keys[len(keys)-1]
	}
	records := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		entry, _ := json.Marshal(map[string]any{
			"uri":   "at://" + repo + "/" + collection + "/" + k,
			"cid":   "bafy-" + k,
			"value": coll[k],
		})
		records = append(records, entry)
	}
	if cursor == "" {
		records = append(records, s.extra...)
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"records": records, "cursor": next})
}

// InjectRaw adds a raw entry to the first page of every listRecords
// response, for exercising clients against malformed entries.
func (s *Server) InjectRaw(entry json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = append(s.extra, entry)
}

// Count returns the number of records stored in repo/collection.
func (s *Server) Count(repo, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.repos[repo][collection])
}

// Puts returns how many putRecord calls were received.
func (s *Server) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Deletes returns how many deleteRecord calls were received.
func (s *Server) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// SetFailPut makes putRecord fail for rkey.
func (s *Server) SetFailPut(rkey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut[rkey] = true
}
