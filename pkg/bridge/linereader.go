/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// lineReader splits a device stream into newline-terminated lines.
type lineReader struct {
	r       *bufio.Reader
	maxLine int
}

func newLineReader(r io.Reader, maxLine int) *lineReader {
	return &lineReader{r: bufio.NewReader(r), maxLine: maxLine}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator. A final line
// without a terminator is returned before io.EOF. When the line is longer than maxLine
// the rest of it is consumed and ErrLineTooLong is returned.
func (l *lineReader) ReadLine() (string, error) {
	var (
		line    []byte
		tooLong bool
	)

	for {
		chunk, err := l.r.ReadSlice('\n')

		if !tooLong {
			line = append(line, chunk...)

			if l.maxLine > 0 && len(trimEOL(line)) > l.maxLine {
				tooLong = true
				line = nil
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return "", ErrLineTooLong
			}

			return string(trimEOL(line)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				return "", ErrLineTooLong
			}

			if len(line) > 0 {
				return string(trimEOL(line)), nil
			}

			return "", io.EOF
		default:
			return "", err
		}
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))

	return bytes.TrimSuffix(line, []byte("\r"))
}
