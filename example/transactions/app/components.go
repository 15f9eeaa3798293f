package app

import (
	"strconv"

	appRepo "github.com/tusharparekh/scaling-demos/example/transactions/repository"
	txreader "github.com/tusharparekh/scaling-demos/example/transactions/step/reader"
	txwriter "github.com/tusharparekh/scaling-demos/example/transactions/step/writer"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/component"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/step/reader"
	"github.com/tusharparekh/scaling-demos/pkg/batch/step/writer"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// JSL から参照されるコンポーネント名です。
const (
	TransactionXMLReader = "transactionXmlReader"
	TransactionCSVReader = "transactionCsvReader"
	TransactionWriter    = "transactionWriter"
)

// RegisterComponents はアプリケーション固有のリーダーとライターを登録します。
func RegisterComponents(r *component.Registry) {
	r.RegisterReader(TransactionXMLReader, func(deps component.Dependencies, properties map[string]string) (core.ItemReader[any], error) {
		path, err := component.RequiredProperty(properties, "resource")
		if err != nil {
			return nil, err
		}
		return reader.AsAny(txreader.NewXMLTransactionReader(path, properties["fragment-root"])), nil
	})
	r.RegisterReader(TransactionCSVReader, func(deps component.Dependencies, properties map[string]string) (core.ItemReader[any], error) {
		path, err := component.RequiredProperty(properties, "resource")
		if err != nil {
			return nil, err
		}
		skipHeader := false
		if v := properties["skip-header"]; v != "" {
			skipHeader, err = strconv.ParseBool(v)
			if err != nil {
				return nil, exception.NewConfigurationError("app", "プロパティ 'skip-header' は真偽値である必要があります: "+v, err)
			}
		}
		return reader.AsAny(txreader.NewCSVTransactionReader(path, skipHeader)), nil
	})
	r.RegisterWriter(TransactionWriter, func(deps component.Dependencies, properties map[string]string) (core.ItemWriter[any], error) {
		repo := appRepo.NewSQLTransactionRepository(deps.Dialect)
		return writer.AsAny(txwriter.NewTransactionWriter(repo)), nil
	})

	logger.Debugf("全てのアプリケーションコンポーネントビルダーを登録しました。")
}
