package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/coder/websocket"

	"github.com/tqbf/dfo/pkg/dfo"
	"github.com/tqbf/dfo/pkg/paths"
)

// Server receives dfo streams and unpacks them under BaseDir. The
// request path names the destination tree: a websocket dial to /proj
// unpacks into BaseDir/proj.
type Server struct {
	BaseDir string

	// Unpack options applied to every received stream; zero values
	// use the dfo defaults.
	MaxDepth int
	MaxBlob  int64
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")
	if err := paths.ValidateName(name); err != nil {
		http.Error(w, fmt.Sprintf("bad tree name: %v", err),
			http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("websocket accept", "err", err)
		return
	}
	defer ws.CloseNow()

	receipt := s.receive(r.Context(), ws, name)
	if receipt.Error != "" {
		slog.Error("receive failed",
			"tree", name,
			"err", receipt.Error,
		)
	} else {
		slog.Info("received tree",
			"tree", name,
			"checksum", receipt.Checksum,
			"nodes", receipt.Nodes,
		)
	}

	if err := sendReceipt(r.Context(), ws, receipt); err != nil {
		slog.Error("send receipt", "err", err)
		return
	}
	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) receive(
	ctx context.Context,
	ws *websocket.Conn,
	name string,
) Receipt {
	conn := websocket.NetConn(ctx, ws, websocket.MessageBinary)

	dest := filepath.Join(s.BaseDir, name)
	res, err := dfo.Unpack(conn, dest, &dfo.UnpackOptions{
		MaxDepth: s.MaxDepth,
		MaxBlob:  s.MaxBlob,
	})
	if err != nil {
		return Receipt{Error: err.Error()}
	}
	if res.Checksum != res.Trailer {
		return Receipt{Error: fmt.Sprintf(
			"root checksum %s does not match trailer %s",
			res.Checksum, res.Trailer,
		)}
	}
	return Receipt{
		Checksum: res.Checksum,
		Trailer:  res.Trailer,
		Nodes:    res.Nodes,
	}
}

func sendReceipt(
	ctx context.Context,
	ws *websocket.Conn,
	receipt Receipt,
) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
