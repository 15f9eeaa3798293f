package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tusharparekh/scaling-demos/example/transactions/domain/entity"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// CSVTransactionReader は account,amount,timestamp 形式の区切りファイルから Transaction を読み込みます。
type CSVTransactionReader struct {
	path       string
	skipHeader bool

	file   *os.File
	reader *csv.Reader
	line   int
}

// NewCSVTransactionReader は新しい CSVTransactionReader のインスタンスを作成します。
func NewCSVTransactionReader(path string, skipHeader bool) *CSVTransactionReader {
	return &CSVTransactionReader{path: path, skipHeader: skipHeader}
}

// Open はファイルを開きます。skipHeader が true の場合は先頭行を読み飛ばします。
func (r *CSVTransactionReader) Open(ctx context.Context) error {
	f, err := os.Open(r.path)
	if err != nil {
		return exception.NewReadError("csv_reader", fmt.Sprintf("ファイル '%s' を開けませんでした", r.path), err)
	}
	r.file = f
	r.reader = csv.NewReader(f)
	r.reader.FieldsPerRecord = 3
	r.reader.TrimLeadingSpace = true
	r.reader.ReuseRecord = true
	r.line = 0

	if r.skipHeader {
		if _, err := r.reader.Read(); err != nil && !errors.Is(err, io.EOF) {
			return exception.NewReadError("csv_reader", fmt.Sprintf("ファイル '%s' のヘッダーを読み込めませんでした", r.path), err)
		}
		r.line++
	}
	logger.Debugf("CSV ファイル '%s' を開きました。", r.path)
	return nil
}

// Read は次の Transaction を返します。ファイルの終端では io.EOF を返します。
func (r *CSVTransactionReader) Read(ctx context.Context) (entity.Transaction, error) {
	if r.reader == nil {
		return entity.Transaction{}, exception.NewReadError("csv_reader", "リーダーが開かれていません", nil)
	}
	record, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		return entity.Transaction{}, io.EOF
	}
	r.line++
	if err != nil {
		return entity.Transaction{}, exception.NewReadError("csv_reader", fmt.Sprintf("'%s' の %d 行目を読み込めませんでした", r.path, r.line), err)
	}
	t, err := entity.ParseTransaction(record[0], record[1], record[2])
	if err != nil {
		return entity.Transaction{}, exception.NewReadError("csv_reader", fmt.Sprintf("'%s' の %d 行目が不正です", r.path, r.line), err)
	}
	return t, nil
}

func (r *CSVTransactionReader) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.reader = nil
	return err
}

var _ core.ItemReader[entity.Transaction] = (*CSVTransactionReader)(nil)
