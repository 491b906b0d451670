package smtpd

import "time"

// feedDataLine reassembles one post-DATA line into the current message.
// term is the line's terminator as classified by the CRLF policy; done
// reports whether the lone "." terminator was seen (the caller must then
// leave CMD_DATA).
func (c *Conn) feedDataLine(line string, term lineTerm) (done bool, err error) {
	msg := &c.session.Message

	if !c.dataStarted {
		c.dataStarted = true
		if cbErr := c.cfg.Callbacks.OnDataStart(&c.session); cbErr != nil {
			c.recordError(cbErr)
			return false, cbErr
		}
	}

	if line == "." {
		// The CRLF preceding the lone "." belongs to the DATA terminator
		// sequence, not the message body: trim the last line terminator
		// we appended.
		if n := len(c.lastDataTerm); n > 0 && len(msg.Data) >= n {
			msg.Data = msg.Data[:len(msg.Data)-n]
		}
		c.lastDataTerm = nil

		msg.Delivered = nowFunc()
		msg.ByteSize = int64(len(msg.Data))

		if cbErr := c.cfg.Callbacks.OnDataComplete(&c.session); cbErr != nil {
			c.recordError(cbErr)
			c.session.resetPerMessage()
			c.dataStarted = false
			return true, cbErr
		}

		c.session.resetPerMessage()
		c.dataStarted = false
		return true, nil
	}

	stuffed := line
	if len(stuffed) > 0 && stuffed[0] == '.' {
		stuffed = stuffed[1:]
	}

	if !msg.Headers && stuffed == "" {
		msg.Headers = true
		if cbErr := c.cfg.Callbacks.OnDataHeaders(&c.session); cbErr != nil {
			c.recordError(cbErr)
			return false, cbErr
		}
	}

	termBytes := c.lineTerminatorFor(term)
	msg.Data = append(msg.Data, stuffed...)
	msg.Data = append(msg.Data, termBytes...)
	c.lastDataTerm = termBytes
	if msg.CRLF == "" {
		msg.CRLF = string(termBytes)
	} else if c.cfg.CRLFMode == CRLFLeave {
		msg.CRLF = string(termBytes)
	}

	if cbErr := c.cfg.Callbacks.OnDataReceiving(&c.session); cbErr != nil {
		c.recordError(cbErr)
		return false, cbErr
	}

	return false, nil
}

// lineTerminatorFor picks the terminator to store for a body line:
// "\r\n" under CRLF_ENSURE/CRLF_STRICT regardless of what was observed,
// or the observed terminator under CRLF_LEAVE.
func (c *Conn) lineTerminatorFor(term lineTerm) []byte {
	if c.cfg.CRLFMode == CRLFLeave {
		return term.bytes()
	}
	return []byte("\r\n")
}

var nowFunc = time.Now
