package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Domain error kinds surfaced to the tool caller. Everything else that goes
// wrong remotely degrades to an empty result and a log line: callers rely on
// "empty means nothing found" vs "error means bad input" as distinct signals.
var (
	errNotFound = errors.New("not found")
	errBadQuery = errors.New("unsupported SQL format")
)

// tableInfo describes one universe exposed by the server.
type tableInfo struct {
	Name string
	ID   string
}

// columnInfo describes one leaf field (dimension, measure or attribute) of a
// universe outline.
type columnInfo struct {
	Name        string
	DataType    string
	Description string
}

// ─── API client ──────────────────────────────────────────────────────────────

// apiClient talks to the SAP BusinessObjects RESTful web service. The server
// natively speaks XML, so every request negotiates JSON explicitly.
//
// The logon token is shared mutable state; a host may dispatch tool calls
// concurrently, so all token access is serialized through the mutex. Every
// remote call is attempted exactly once, with no retry and no timeout beyond
// what the transport provides.
type apiClient struct {
	baseURL  string
	username string
	password string
	authMode string

	http *http.Client

	mu    sync.Mutex
	token string
}

func newAPIClient(cfg config) *apiClient {
	return &apiClient{
		baseURL:  cfg.baseURL,
		username: cfg.username,
		password: cfg.password,
		authMode: cfg.authMode,
		http:     &http.Client{},
	}
}

// The BO server answers in XML unless both headers ask for JSON.
func setJSONHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}

// login authenticates against /logon/long and stores the logon token. Most
// deployments return the token in the X-SAP-LogonToken response header; some
// put it in a logonToken body field instead, so both are checked.
func (c *apiClient) login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"userName": c.username,
		"password": c.password,
		"auth":     c.authMode,
	})
	if err != nil {
		return err
	}

	loginURL := c.baseURL + "/logon/long"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	setJSONHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("could not connect to SAP BO server at %s: %w", loginURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("login at %s failed: %s", loginURL, resp.Status)
	}

	token := resp.Header.Get("X-SAP-LogonToken")
	if token == "" {
		var body struct {
			LogonToken string `json:"logonToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			token = body.LogonToken
		}
	}
	if token == "" {
		return errors.New("failed to retrieve logon token from SAP BO server")
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// logout invalidates the token remotely. Remote failures are logged and
// swallowed; local token state is always cleared. Calling logout without a
// token is a no-op.
func (c *apiClient) logout(ctx context.Context) {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()
	if token == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logon/long", strings.NewReader("{}"))
	if err != nil {
		logger.Printf("logout: %v", err)
		return
	}
	setJSONHeaders(req)
	req.Header.Set("X-SAP-LogonToken", token)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Printf("logout: %v", err)
		return
	}
	resp.Body.Close()
}

// sessionInfo reports connection settings and token presence. The password
// never leaves the client.
func (c *apiClient) sessionInfo() map[string]interface{} {
	c.mu.Lock()
	loggedIn := c.token != ""
	c.mu.Unlock()
	return map[string]interface{}{
		"base_url":  c.baseURL,
		"user":      c.username,
		"auth":      c.authMode,
		"logged_in": loggedIn,
	}
}

// doJSON performs one request with JSON negotiation and the logon token
// attached, decoding a 2xx response body into out (skipped when out is nil).
// Numeric values are decoded as json.Number so they render back in wire form.
func (c *apiClient) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	setJSONHeaders(req)
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("X-SAP-LogonToken", c.token)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, url, err)
	}
	return nil
}

// ─── Lenient decode helpers ──────────────────────────────────────────────────

// flexID decodes a JSON value that the server emits as either a string or a
// number, an artifact of its XML→JSON conversion.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexID(n.String())
	return nil
}

// asList normalizes a collection field that the server collapses to a single
// object when it holds one element. Absent or unusable input yields nil.
func asList(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(trimmed, &list); err == nil {
		return list
	}
	if trimmed[0] == '{' {
		return []json.RawMessage{trimmed}
	}
	return nil
}

// scalarString renders a decoded JSON scalar as cell text.
func scalarString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", s)
	}
}

// ─── Catalog ─────────────────────────────────────────────────────────────────

// getTables lists the universes exposed by the server. Remote or parse
// failures degrade to an empty list.
func (c *apiClient) getTables(ctx context.Context) []tableInfo {
	var body struct {
		Universes struct {
			Universe json.RawMessage `json:"universe"`
		} `json:"universes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/raylight/v1/universes", nil, &body); err != nil {
		logger.Printf("fetch universes: %v", err)
		return nil
	}

	var tables []tableInfo
	for _, raw := range asList(body.Universes.Universe) {
		var u struct {
			Name string `json:"name"`
			ID   flexID `json:"id"`
		}
		if err := json.Unmarshal(raw, &u); err != nil {
			logger.Printf("parse universe entry: %v", err)
			return nil
		}
		if u.Name == "" {
			continue
		}
		tables = append(tables, tableInfo{Name: u.Name, ID: string(u.ID)})
	}
	return tables
}

// resolveUniverseID maps a universe name to its id via a fresh listing call.
func (c *apiClient) resolveUniverseID(ctx context.Context, table string) (string, error) {
	for _, t := range c.getTables(ctx) {
		if t.Name == table {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("universe %q %w", table, errNotFound)
}

// outlineNode is one entry of the universe outline tree. techType marks
// dimension/measure/attribute leaves; a node can carry both a techType and a
// child collection, in which case it is emitted as a column AND walked into.
type outlineNode struct {
	Name        string `json:"name"`
	TechType    string `json:"techType"`
	DataType    string `json:"dataType"`
	Description string `json:"description"`
	Nodes       struct {
		Node json.RawMessage `json:"node"`
	} `json:"nodes"`
}

func isColumnType(techType string) bool {
	switch techType {
	case "Dimension", "Measure", "Attribute":
		return true
	}
	return false
}

// getColumns returns the leaf fields of the named universe. An unknown name
// is an error; remote or parse failures after resolution degrade to an empty
// list.
func (c *apiClient) getColumns(ctx context.Context, table string) ([]columnInfo, error) {
	id, err := c.resolveUniverseID(ctx, table)
	if err != nil {
		return nil, err
	}

	var body struct {
		Nodes struct {
			Node json.RawMessage `json:"node"`
		} `json:"nodes"`
	}
	url := fmt.Sprintf("%s/raylight/v1/universes/%s?aggregated=true", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &body); err != nil {
		logger.Printf("fetch columns for %s: %v", table, err)
		return nil, nil
	}

	// Depth-first over an explicit stack; children are pushed in reverse so
	// emission order matches a recursive pre-order walk.
	roots := asList(body.Nodes.Node)
	stack := make([]json.RawMessage, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	var columns []columnInfo
	for len(stack) > 0 {
		raw := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var n outlineNode
		if err := json.Unmarshal(raw, &n); err != nil {
			logger.Printf("parse outline node for %s: %v", table, err)
			return nil, nil
		}
		if isColumnType(n.TechType) {
			dataType := n.DataType
			if dataType == "" {
				dataType = "string"
			}
			columns = append(columns, columnInfo{
				Name:        n.Name,
				DataType:    dataType,
				Description: n.Description,
			})
		}
		children := asList(n.Nodes.Node)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return columns, nil
}

// ─── Query execution ─────────────────────────────────────────────────────────

// runQuery executes a restricted SELECT against a universe through the
// transient-document workflow: create a query document, read the first
// data-provider flow, delete the document.
//
// The result-object descriptors sent to the server reuse the requested column
// names as object ids instead of looking up catalog object ids; a strict
// server rejects such a document, which surfaces here as a degraded empty
// result (see DESIGN.md).
func (c *apiClient) runQuery(ctx context.Context, sql string) ([]record, error) {
	q, err := parseSelect(sql)
	if err != nil {
		return nil, err
	}

	id, err := c.resolveUniverseID(ctx, q.table)
	if err != nil {
		return nil, err
	}
	// Fetched for parity with the document workflow; the descriptors below
	// still use the requested names, not catalog object ids.
	if _, err := c.getColumns(ctx, q.table); err != nil {
		return nil, err
	}

	resultObjects := make([]map[string]string, 0, len(q.columns))
	for _, col := range q.columns {
		resultObjects = append(resultObjects, map[string]string{"id": col, "name": col})
	}
	payload, err := json.Marshal(map[string]interface{}{
		"document": map[string]interface{}{
			"name": "MCP_Transient_Query_" + uuid.NewString(),
			"query": map[string]interface{}{
				"dataSourceId":  id,
				"resultObjects": resultObjects,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var created struct {
		Document struct {
			ID flexID `json:"id"`
		} `json:"document"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/raylight/v1/documents", payload, &created); err != nil {
		logger.Printf("run query: create document: %v", err)
		return nil, nil
	}
	docID := string(created.Document.ID)
	if docID == "" {
		logger.Printf("run query: create response carried no document id")
		return nil, nil
	}
	// Best-effort cleanup once the document exists, even when the flow fetch
	// below fails.
	defer func() {
		docURL := fmt.Sprintf("%s/raylight/v1/documents/%s", c.baseURL, docID)
		if err := c.doJSON(ctx, http.MethodDelete, docURL, nil, nil); err != nil {
			logger.Printf("run query: delete document %s: %v", docID, err)
		}
	}()

	var flow struct {
		Flow struct {
			Values [][]interface{} `json:"values"`
		} `json:"flow"`
	}
	flowURL := fmt.Sprintf("%s/raylight/v1/documents/%s/dataproviders/1/flows/1", c.baseURL, docID)
	if err := c.doJSON(ctx, http.MethodGet, flowURL, nil, &flow); err != nil {
		logger.Printf("run query: fetch flow: %v", err)
		return nil, nil
	}

	// Rows are keyed by the requested column list, not whatever order the
	// server used. Short rows render missing cells blank; long rows are
	// truncated.
	rows := make([]record, 0, len(flow.Flow.Values))
	for _, vals := range flow.Flow.Values {
		cells := make([]string, len(q.columns))
		for i := range q.columns {
			if i < len(vals) {
				cells[i] = scalarString(vals[i])
			}
		}
		rows = append(rows, newRecord(q.columns, cells))
	}
	return rows, nil
}
