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

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

type ConfigTest struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) { suite.Run(t, new(ConfigTest)) }

func (t *ConfigTest) SetupTest() {
	viper.Reset()
}

func (t *ConfigTest) TestBindFlagsRegistersDefaults() {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	t.Require().NoError(BindFlags(fs))

	t.Equal(16, viper.GetInt("block-cache.capacity-frames"))
	t.Equal(512, viper.GetInt("block-cache.device-block-size"))
	t.Equal(10, viper.GetInt("scheduler.timeslice-ms"))
	t.Equal(string(InfoLogSeverity), viper.GetString("logging.severity"))
	t.False(viper.GetBool("detector.enabled-by-default"))
}

func (t *ConfigTest) TestBindFlagsHonorsOverride() {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	t.Require().NoError(BindFlags(fs))
	t.Require().NoError(fs.Parse([]string{"--block-cache-frames=32", "--enable-deadlock-detect"}))

	t.Equal(32, viper.GetInt("block-cache.capacity-frames"))
	t.True(viper.GetBool("detector.enabled-by-default"))
}
