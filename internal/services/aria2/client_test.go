package aria2_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reshelve/internal/services"
	"reshelve/internal/services/aria2"
)

type rpcCall struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func rpcServer(t *testing.T, calls *[]rpcCall, respond func(method string) (any, *map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Errorf("decode rpc request: %v", err)
		}
		if calls != nil {
			*calls = append(*calls, call)
		}
		result, rpcErr := respond(call.Method)
		response := map[string]any{"jsonrpc": "2.0", "id": "1"}
		if rpcErr != nil {
			response["error"] = *rpcErr
		} else {
			response["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("encode rpc response: %v", err)
		}
	}))
}

func TestAddURIPrependsSecretToken(t *testing.T) {
	t.Parallel()

	var calls []rpcCall
	server := rpcServer(t, &calls, func(string) (any, *map[string]any) {
		return "gid-1", nil
	})
	defer server.Close()

	client := aria2.New(server.URL, "s3cret")
	gid, err := client.AddURI(context.Background(), []string{"https://mirror/a.zip"}, aria2.DownloadOptions{
		Dir:   "/work",
		Out:   "a.zip",
		Split: 16,
	})
	if err != nil {
		t.Fatalf("AddURI: %v", err)
	}
	if gid != "gid-1" {
		t.Fatalf("gid: %q", gid)
	}
	if len(calls) != 1 || calls[0].Method != "aria2.addUri" {
		t.Fatalf("calls: %+v", calls)
	}
	if token, ok := calls[0].Params[0].(string); !ok || token != "token:s3cret" {
		t.Fatalf("first param: %v", calls[0].Params[0])
	}
	opts, ok := calls[0].Params[2].(map[string]any)
	if !ok {
		t.Fatalf("options param: %T", calls[0].Params[2])
	}
	for key, want := range map[string]string{
		"continue":           "true",
		"auto-file-renaming": "false",
		"allow-overwrite":    "true",
		"out":                "a.zip",
		"split":              "16",
	} {
		if got := opts[key]; got != want {
			t.Errorf("option %s = %v, want %v", key, got, want)
		}
	}
}

func TestTellStatusParsesStringNumbers(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, nil, func(string) (any, *map[string]any) {
		return map[string]any{
			"gid":             "gid-2",
			"status":          "active",
			"totalLength":     "1048576",
			"completedLength": "524288",
			"downloadSpeed":   "2048",
			"files": []map[string]any{
				{"path": "/work/a.zip", "length": "1048576", "completedLength": "524288"},
			},
		}, nil
	})
	defer server.Close()

	client := aria2.New(server.URL, "")
	status, err := client.TellStatus(context.Background(), "gid-2")
	if err != nil {
		t.Fatalf("TellStatus: %v", err)
	}
	if status.State != aria2.StateActive || status.TotalLength != 1048576 || status.CompletedLength != 524288 {
		t.Fatalf("status: %+v", status)
	}
	if status.Terminal() {
		t.Fatal("active download reported terminal")
	}
	if len(status.Files) != 1 || status.Files[0].Path != "/work/a.zip" {
		t.Fatalf("files: %+v", status.Files)
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	t.Parallel()

	server := rpcServer(t, nil, func(string) (any, *map[string]any) {
		return nil, &map[string]any{"code": 1, "message": "Unauthorized"}
	})
	defer server.Close()

	client := aria2.New(server.URL, "wrong")
	_, err := client.GetVersion(context.Background())
	if err == nil {
		t.Fatal("GetVersion succeeded against erroring daemon")
	}
	if !errors.Is(err, services.ErrDaemon) {
		t.Fatalf("error missing daemon marker: %v", err)
	}
}

func TestCallDetectsRateLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := aria2.New(server.URL, "")
	_, err := client.GetGlobalStat(context.Background())
	if !errors.Is(err, aria2.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLifecycleMethodsHitExpectedRPCNames(t *testing.T) {
	t.Parallel()

	var calls []rpcCall
	server := rpcServer(t, &calls, func(method string) (any, *map[string]any) {
		switch method {
		case "aria2.tellActive", "aria2.tellWaiting":
			return []any{}, nil
		default:
			return "OK", nil
		}
	})
	defer server.Close()

	ctx := context.Background()
	client := aria2.New(server.URL, "")
	if err := client.ForcePause(ctx, "g"); err != nil {
		t.Fatalf("ForcePause: %v", err)
	}
	if err := client.Unpause(ctx, "g"); err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	if err := client.ForceRemove(ctx, "g"); err != nil {
		t.Fatalf("ForceRemove: %v", err)
	}
	if err := client.RemoveDownloadResult(ctx, "g"); err != nil {
		t.Fatalf("RemoveDownloadResult: %v", err)
	}
	if _, err := client.TellActive(ctx); err != nil {
		t.Fatalf("TellActive: %v", err)
	}
	if _, err := client.TellWaiting(ctx, 0, 100); err != nil {
		t.Fatalf("TellWaiting: %v", err)
	}

	want := []string{
		"aria2.forcePause", "aria2.unpause", "aria2.forceRemove",
		"aria2.removeDownloadResult", "aria2.tellActive", "aria2.tellWaiting",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls: %d, want %d", len(calls), len(want))
	}
	for i, method := range want {
		if calls[i].Method != method {
			t.Errorf("call %d: %q, want %q", i, calls[i].Method, method)
		}
	}
}
