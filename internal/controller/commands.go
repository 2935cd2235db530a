package controller

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/watertank-sensor/internal/config"
	"github.com/sweeney/watertank-sensor/internal/logging"
	"github.com/sweeney/watertank-sensor/internal/status"
)

// Command replies that are plain text.
const (
	replyCalFullOK  = "CAL FULL OK"
	replyCalEmptyOK = "CAL EMPTY OK"
	replyCalCleared = "CAL CLEARED"
	replyRejected   = "CAL REJECTED"
)

// HandleCommand executes one command line received over the wireless
// channel and queues the reply. Commands are case-insensitive and commas
// separate words like spaces do. now is the control loop's clock.
func (c *Controller) HandleCommand(line string, now time.Time) {
	cmd := normalize(line)
	if cmd == "" {
		return
	}
	logging.Infof("cmd: %s", cmd)

	switch {
	case cmd == "INFO?":
		c.ch.Notify(status.FormatInfo(c.Snapshot(now)))

	case cmd == "CFG?":
		marker, body := status.FormatConfig(c.cfg)
		c.ch.Notify(marker)
		c.ch.Notify(body)

	case cmd == "CAL FULL":
		c.calibrate(true)

	case cmd == "CAL EMPTY":
		c.calibrate(false)

	case cmd == "CAL CLEAR":
		cfg := c.cfg
		cfg.CalFullMM, cfg.CalEmptyMM = nil, nil
		if c.commit(cfg, "CAL CLEAR") {
			c.reply(replyCalCleared)
		}

	case cmd == "CFG RESET":
		cfg := config.Default()
		cfg.PersistPath = c.cfg.PersistPath
		cfg = config.Validate(cfg)
		if c.commit(cfg, "CFG RESET") {
			c.ch.Notify(status.FormatEvent(status.EventJSON{Evt: "sys", Msg: "cfg_reset_ok"}))
		}

	case cmd == "TEST START":
		c.startTest(now, false, false)

	case cmd == "TEST START PIPE":
		c.startTest(now, true, false)

	case cmd == "TEST START PIPE OUT":
		c.startTest(now, true, true)

	case cmd == "TEST STOP":
		c.stopTest(now)

	case cmd == "TEST?":
		c.ch.Notify(status.FormatTest(c.Snapshot(now), ""))

	case strings.HasPrefix(cmd, "TEST PERIOD "):
		c.setTestPeriod(now, strings.TrimPrefix(cmd, "TEST PERIOD "))

	default:
		c.reply("ERR unknown command: " + cmd)
	}
}

// normalize upper-cases line, treats commas as spaces and collapses runs
// of whitespace.
func normalize(line string) string {
	line = strings.ReplaceAll(strings.ToUpper(line), ",", " ")
	return strings.Join(strings.Fields(line), " ")
}

func (c *Controller) reply(text string) {
	c.ch.Notify([]byte(text))
}

// calibrate stores the current smoothed distance as the full or empty
// anchor. It requires a live, plausible reading.
func (c *Controller) calibrate(full bool) {
	v, ok := c.est.EMA()
	if !ok || c.test.active || !c.sensor.Valid() || math.IsNaN(v) || math.IsInf(v, 0) ||
		v < float64(c.cfg.MinMM) || v > float64(c.cfg.MaxMM) {
		c.reply(replyRejected)
		return
	}

	cfg := c.cfg
	name, ack := "CAL EMPTY", replyCalEmptyOK
	if full {
		name, ack = "CAL FULL", replyCalFullOK
		cfg.CalFullMM = config.Float(v)
	} else {
		cfg.CalEmptyMM = config.Float(v)
	}
	if c.commit(cfg, name) {
		logging.Infof("cmd: %s at %.1f mm", name, v)
		c.reply(ack)
	}
}

// commit persists cfg and makes it active. A failed save keeps the old
// configuration and reports the error instead of acknowledging.
func (c *Controller) commit(cfg config.Config, what string) bool {
	if c.store != nil {
		if err := c.store.Save(cfg); err != nil {
			logging.Errorf("cmd: %s: save config: %v", what, err)
			if strings.HasPrefix(what, "CAL") {
				c.reply("CAL SAVE FAILED: " + err.Error())
			} else {
				c.reply(what + " FAILED: " + err.Error())
			}
			return false
		}
	}
	c.setConfig(cfg)
	return true
}

func (c *Controller) setTestPeriod(now time.Time, arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < config.MinTestPeriodS {
		c.reply(fmt.Sprintf("ERR bad test period: %s", arg))
		return
	}
	cfg := c.cfg
	cfg.TestPeriodS = n
	if c.commit(cfg, "TEST PERIOD") {
		c.ch.Notify(status.FormatTest(c.Snapshot(now), "period"))
	}
}
