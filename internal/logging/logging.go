package logging

import (
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// New builds the process logger. Production or JSON output uses zap's
// production config; anything else gets a human-readable console encoder.
func New(env string, jsonOutput bool) (*zap.SugaredLogger, error) {
    var cfg zap.Config
    if jsonOutput || env == "production" {
        cfg = zap.NewProductionConfig()
    } else {
        cfg = zap.NewDevelopmentConfig()
        cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
        cfg.DisableStacktrace = true
    }
    cfg.OutputPaths = []string{"stdout"}
    cfg.ErrorOutputPaths = []string{"stderr"}
    l, err := cfg.Build()
    if err != nil {
        return nil, err
    }
    return l.Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }
