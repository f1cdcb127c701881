package remote

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/tqbf/dfo/pkg/dfo"
)

// Send packs the tree rooted at root straight into a websocket dialed
// at url and waits for the receiver's receipt. It fails if the
// receiver reports an error or unpacked a different root checksum than
// the one computed locally while packing.
func Send(
	ctx context.Context,
	url, root string,
	opts *dfo.PackOptions,
) (*Receipt, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.CloseNow()

	conn := websocket.NetConn(ctx, ws, websocket.MessageBinary)
	bw := bufio.NewWriterSize(conn, 1<<16)

	res, err := dfo.Pack(root, bw, opts)
	if err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush stream: %w", err)
	}
	slog.Debug("stream sent",
		"checksum", res.Checksum,
		"nodes", res.Nodes,
	)

	receipt, err := readReceipt(ctx, ws)
	if err != nil {
		return nil, err
	}
	if receipt.Error != "" {
		return nil, fmt.Errorf("remote: %s", receipt.Error)
	}
	if receipt.Checksum != res.Checksum {
		return nil, fmt.Errorf(
			"remote unpacked %s, local packed %s",
			receipt.Checksum, res.Checksum,
		)
	}

	ws.Close(websocket.StatusNormalClosure, "")
	return receipt, nil
}

func readReceipt(
	ctx context.Context,
	ws *websocket.Conn,
) (*Receipt, error) {
	typ, data, err := ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf(
			"expected text receipt, got %v frame", typ,
		)
	}
	return ParseReceipt(data)
}
