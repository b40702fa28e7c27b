package diagdump

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Summary is the header information of one dump file.
type Summary struct {
	Path     string
	FileName string
	ModTime  time.Time
	Size     int64

	Time      time.Time
	RequestID string
	Method    string
	URLPath   string
	ClientIP  string

	TargetURL string
	Height    string
	ExitCode  *int
	Status    int
	Truncated bool
}

type ListOptions struct {
	Dir   string
	Limit int
}

// ListSummaries returns the newest dumps under opts.Dir first. A missing
// directory yields an empty list.
func ListSummaries(opts ListOptions) ([]Summary, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("dump dir is empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 2000 {
		limit = 2000
	}

	type fileItem struct {
		path string
		info fs.FileInfo
	}
	var items []fileItem
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, fileItem{path: path, info: info})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		mi, mj := items[i].info.ModTime(), items[j].info.ModTime()
		if !mi.Equal(mj) {
			return mi.After(mj)
		}
		return items[i].info.Name() > items[j].info.Name()
	})
	if len(items) > limit {
		items = items[:limit]
	}

	out := make([]Summary, 0, len(items))
	for _, it := range items {
		sum, err := ParseSummary(it.path, it.info)
		if err != nil {
			out = append(out, Summary{
				Path:     it.path,
				FileName: it.info.Name(),
				ModTime:  it.info.ModTime(),
				Size:     it.info.Size(),
			})
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}

func ParseSummary(path string, info fs.FileInfo) (Summary, error) {
	sum := Summary{Path: path, FileName: filepath.Base(path)}
	if info != nil {
		sum.ModTime = info.ModTime()
		sum.Size = info.Size()
	}
	f, err := os.Open(path) // #nosec G304 -- admin tool reads the configured dump dir.
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = f.Close() }()

	if err := parseSummary(&sum, f); err != nil {
		return Summary{}, err
	}
	if sum.Time.IsZero() {
		sum.Time = sum.ModTime
	}
	return sum, nil
}

func parseSummary(sum *Summary, r io.Reader) error {
	br := bufio.NewReader(r)
	section := ""
	var reqBuf strings.Builder
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		raw := strings.TrimRight(line, "\r\n")
		t := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(t, "=== ") && strings.HasSuffix(t, " ==="):
			section = t
		case t == "[truncated]" || t == "[head truncated]":
			sum.Truncated = true
		case section == "=== META ===":
			parseMetaLine(sum, t)
		case section == "=== REQUEST ===":
			if t == "" {
				parseRequest(sum, reqBuf.String())
				reqBuf.Reset()
				section = ""
			} else if reqBuf.Len() < 64<<10 {
				reqBuf.WriteString(raw)
				reqBuf.WriteByte('\n')
			}
		case section == "=== YT-DLP ===" && strings.HasPrefix(t, "exit_code="):
			f := strings.Fields(strings.TrimPrefix(t, "exit_code="))
			if len(f) > 0 {
				if n, xerr := strconv.Atoi(f[0]); xerr == nil {
					sum.ExitCode = &n
				}
			}
		case section == "=== RESPONSE ===" && strings.HasPrefix(t, "status="):
			if n, xerr := strconv.Atoi(strings.TrimPrefix(t, "status=")); xerr == nil {
				sum.Status = n
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if reqBuf.Len() > 0 {
		parseRequest(sum, reqBuf.String())
	}
	return nil
}

func parseMetaLine(sum *Summary, t string) {
	k, v, ok := strings.Cut(t, "=")
	if !ok {
		return
	}
	switch k {
	case "time":
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			sum.Time = ts
		}
	case "request_id":
		sum.RequestID = v
	case "method":
		// "method=POST path=/api/download"
		m, rest, _ := strings.Cut(v, " ")
		sum.Method = m
		if p, ok := strings.CutPrefix(rest, "path="); ok {
			sum.URLPath = p
		}
	case "client_ip":
		sum.ClientIP = v
	}
}

func parseRequest(sum *Summary, body string) {
	var v struct {
		URL    any `json:"url"`
		Height any `json:"height"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &v); err != nil {
		return
	}
	if s, ok := v.URL.(string); ok {
		sum.TargetURL = s
	}
	if v.Height != nil {
		sum.Height = fmt.Sprint(v.Height)
	}
}

// Row returns the cells shown by the admin CLI, in column order.
func (s Summary) Row() []string {
	ts := s.Time
	if ts.IsZero() {
		ts = s.ModTime
	}
	rid := s.RequestID
	if rid == "" {
		rid = strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName))
	}
	exit := "-"
	if s.ExitCode != nil {
		exit = strconv.Itoa(*s.ExitCode)
	}
	status := "-"
	if s.Status != 0 {
		status = strconv.Itoa(s.Status)
	}
	return []string{
		orDash(formatTime(ts)),
		rid,
		orDash(s.URLPath),
		status,
		exit,
		orDash(s.Height),
		orDash(s.TargetURL),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
