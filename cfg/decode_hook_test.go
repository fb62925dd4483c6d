// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/suite"
)

type DecodeHookTest struct {
	suite.Suite
}

func TestDecodeHookSuite(t *testing.T) { suite.Run(t, new(DecodeHookTest)) }

func (t *DecodeHookTest) decode(input map[string]interface{}, out *FileSystemConfig) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     out,
	})
	t.Require().NoError(err)
	return decoder.Decode(input)
}

func (t *DecodeHookTest) TestDecodesOctalFileMode() {
	var out FileSystemConfig
	t.Require().NoError(t.decode(map[string]interface{}{"FileMode": "644"}, &out))
	t.Equal(Octal(0644), out.FileMode)
}

func (t *DecodeHookTest) TestRejectsInvalidLogSeverity() {
	var out LoggingConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DecodeHook(),
		Result:     &out,
	})
	t.Require().NoError(err)
	t.Error(decoder.Decode(map[string]interface{}{"Severity": "LOUD"}))
}
