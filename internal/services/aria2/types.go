package aria2

import "strconv"

// Download states reported by the daemon.
const (
	StateActive   = "active"
	StateWaiting  = "waiting"
	StatePaused   = "paused"
	StateError    = "error"
	StateComplete = "complete"
	StateRemoved  = "removed"
)

// Status is the decoded state of one download. aria2 serializes all numbers
// as strings; the raw types below absorb that.
type Status struct {
	GID             string
	State           string
	TotalLength     int64
	CompletedLength int64
	DownloadSpeed   int64
	ErrorCode       string
	ErrorMessage    string
	Dir             string
	Files           []File
}

// Terminal reports whether the download reached a final state.
func (s Status) Terminal() bool {
	switch s.State {
	case StateComplete, StateError, StateRemoved:
		return true
	default:
		return false
	}
}

// File is one file within a download.
type File struct {
	Path            string
	Length          int64
	CompletedLength int64
	URIs            []URI
}

// URI is one mirror source of a file.
type URI struct {
	URI    string
	Status string
}

// GlobalStat aggregates daemon-wide transfer counters.
type GlobalStat struct {
	DownloadSpeed int64
	NumActive     int
	NumWaiting    int
	NumStopped    int
}

type rawStatus struct {
	GID             string    `json:"gid"`
	Status          string    `json:"status"`
	TotalLength     string    `json:"totalLength"`
	CompletedLength string    `json:"completedLength"`
	DownloadSpeed   string    `json:"downloadSpeed"`
	ErrorCode       string    `json:"errorCode"`
	ErrorMessage    string    `json:"errorMessage"`
	Dir             string    `json:"dir"`
	Files           []rawFile `json:"files"`
}

func (r rawStatus) toStatus() Status {
	files := make([]File, len(r.Files))
	for i, f := range r.Files {
		files[i] = f.toFile()
	}
	return Status{
		GID:             r.GID,
		State:           r.Status,
		TotalLength:     parseInt64(r.TotalLength),
		CompletedLength: parseInt64(r.CompletedLength),
		DownloadSpeed:   parseInt64(r.DownloadSpeed),
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		Dir:             r.Dir,
		Files:           files,
	}
}

func toStatuses(raw []rawStatus) []Status {
	statuses := make([]Status, len(raw))
	for i, r := range raw {
		statuses[i] = r.toStatus()
	}
	return statuses
}

type rawFile struct {
	Path            string   `json:"path"`
	Length          string   `json:"length"`
	CompletedLength string   `json:"completedLength"`
	URIs            []rawURI `json:"uris"`
}

func (r rawFile) toFile() File {
	uris := make([]URI, len(r.URIs))
	for i, u := range r.URIs {
		uris[i] = URI{URI: u.URI, Status: u.Status}
	}
	return File{
		Path:            r.Path,
		Length:          parseInt64(r.Length),
		CompletedLength: parseInt64(r.CompletedLength),
		URIs:            uris,
	}
}

type rawURI struct {
	URI    string `json:"uri"`
	Status string `json:"status"`
}

type rawGlobalStat struct {
	DownloadSpeed string `json:"downloadSpeed"`
	NumActive     string `json:"numActive"`
	NumWaiting    string `json:"numWaiting"`
	NumStopped    string `json:"numStopped"`
}

func (r rawGlobalStat) toGlobalStat() GlobalStat {
	return GlobalStat{
		DownloadSpeed: parseInt64(r.DownloadSpeed),
		NumActive:     int(parseInt64(r.NumActive)),
		NumWaiting:    int(parseInt64(r.NumWaiting)),
		NumStopped:    int(parseInt64(r.NumStopped)),
	}
}

func parseInt64(value string) int64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
