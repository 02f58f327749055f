package weather

import logx "widgetd/pkg/logx"

func nopLogger() logx.Logger { return logx.Nop() }
