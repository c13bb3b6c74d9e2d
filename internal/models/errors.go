package models

import "errors"

var (
	ErrInvalidStockCode  = errors.New("invalid stock code")
	ErrInvalidBar        = errors.New("invalid bar (high < low)")
	ErrInvalidVolume     = errors.New("invalid volume")
	ErrInvalidAlertID    = errors.New("invalid alert ID")
	ErrEmptyMessage      = errors.New("alert message cannot be empty")
	ErrInvalidSignal     = errors.New("trade alert requires breakout or breakdown signal")
	ErrInvalidPeriod     = errors.New("indicator period cannot be negative")
	ErrInvalidThresholds = errors.New("support and resistance must be non-negative")
)
