package logger

import (
	"fmt"

	phlog "github.com/oarkflow/log"
)

// PhusluLogger writes through the oarkflow/log (phuslu style) global logger.
type PhusluLogger struct {
	component string
}

func NewPhusluLogger() *PhusluLogger { return &PhusluLogger{} }

// Component returns a copy that tags every record with component=name.
func (p *PhusluLogger) Component(name string) *PhusluLogger {
	return &PhusluLogger{component: name}
}

func (p *PhusluLogger) Debug(msg string, keyvals ...any) {
	p.write(phlog.Debug(), msg, keyvals)
}

func (p *PhusluLogger) Info(msg string, keyvals ...any) {
	p.write(phlog.Info(), msg, keyvals)
}

func (p *PhusluLogger) Error(msg string, keyvals ...any) {
	p.write(phlog.Error(), msg, keyvals)
}

func (p *PhusluLogger) write(b *phlog.Entry, msg string, keyvals []any) {
	if b == nil {
		return
	}
	if p.component != "" {
		b = b.Str("component", p.component)
	}
	for i := 0; i < len(keyvals)-1; i += 2 {
		ks := fmt.Sprint(keyvals[i])
		switch vv := keyvals[i+1].(type) {
		case string:
			b = b.Str(ks, vv)
		case bool:
			b = b.Bool(ks, vv)
		case int:
			b = b.Int(ks, vv)
		case error:
			b = b.Str(ks, vv.Error())
		case fmt.Stringer:
			b = b.Str(ks, vv.String())
		default:
			b = b.Any(ks, vv)
		}
	}
	b.Msg(msg)
}
