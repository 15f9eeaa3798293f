package reader

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tusharparekh/scaling-demos/example/transactions/domain/entity"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// DefaultFragmentRoot は XML の取引要素のデフォルト名です。
const DefaultFragmentRoot = "transaction"

type transactionFragment struct {
	Account   string `xml:"account"`
	Amount    string `xml:"amount"`
	Timestamp string `xml:"timestamp"`
}

// XMLTransactionReader は XML ファイルを先頭から走査し、fragmentRoot 要素ごとに Transaction を返します。
// ファイル全体をメモリに読み込むことはありません。
type XMLTransactionReader struct {
	path         string
	fragmentRoot string

	file    *os.File
	decoder *xml.Decoder
	count   int
}

// NewXMLTransactionReader は新しい XMLTransactionReader のインスタンスを作成します。
// fragmentRoot が空の場合は DefaultFragmentRoot を使います。
func NewXMLTransactionReader(path, fragmentRoot string) *XMLTransactionReader {
	if fragmentRoot == "" {
		fragmentRoot = DefaultFragmentRoot
	}
	return &XMLTransactionReader{path: path, fragmentRoot: fragmentRoot}
}

func (r *XMLTransactionReader) Open(ctx context.Context) error {
	f, err := os.Open(r.path)
	if err != nil {
		return exception.NewReadError("xml_reader", fmt.Sprintf("ファイル '%s' を開けませんでした", r.path), err)
	}
	r.file = f
	r.decoder = xml.NewDecoder(bufio.NewReader(f))
	r.count = 0
	logger.Debugf("XML ファイル '%s' を開きました (要素: <%s>)。", r.path, r.fragmentRoot)
	return nil
}

// Read は次の fragmentRoot 要素を Transaction に変換して返します。要素がなくなると io.EOF を返します。
func (r *XMLTransactionReader) Read(ctx context.Context) (entity.Transaction, error) {
	if r.decoder == nil {
		return entity.Transaction{}, exception.NewReadError("xml_reader", "リーダーが開かれていません", nil)
	}
	for {
		tok, err := r.decoder.Token()
		if errors.Is(err, io.EOF) {
			return entity.Transaction{}, io.EOF
		}
		if err != nil {
			return entity.Transaction{}, exception.NewReadError("xml_reader", fmt.Sprintf("'%s' の XML を解析できませんでした", r.path), err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != r.fragmentRoot {
			continue
		}

		var frag transactionFragment
		if err := r.decoder.DecodeElement(&frag, &start); err != nil {
			return entity.Transaction{}, exception.NewReadError("xml_reader", fmt.Sprintf("'%s' の %d 番目の <%s> を解析できませんでした", r.path, r.count+1, r.fragmentRoot), err)
		}
		r.count++
		t, err := entity.ParseTransaction(frag.Account, frag.Amount, frag.Timestamp)
		if err != nil {
			return entity.Transaction{}, exception.NewReadError("xml_reader", fmt.Sprintf("'%s' の %d 番目の <%s> が不正です", r.path, r.count, r.fragmentRoot), err)
		}
		return t, nil
	}
}

func (r *XMLTransactionReader) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.decoder = nil
	return err
}

var _ core.ItemReader[entity.Transaction] = (*XMLTransactionReader)(nil)
