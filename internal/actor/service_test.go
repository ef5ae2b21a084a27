// Copyright 2025 Tom Barlow
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

package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/remediator/internal/log"
	rerrors "github.com/tombee/remediator/pkg/errors"
)

func TestService(t *testing.T) {
	vfcOp := newFakeOperator("vfc", "Restart")
	sdncOp := newFakeOperator("sdnc", "Reroute")

	vfc := New("vfc", WithLogger(log.Discard()))
	vfc.AddOperator(vfcOp)
	sdnc := New("sdnc", WithLogger(log.Discard()))
	sdnc.AddOperator(sdncOp)

	svc := NewService(log.Discard())
	require.NoError(t, svc.Register(vfc))
	require.NoError(t, svc.Register(sdnc))
	assert.Error(t, svc.Register(New("vfc")))
	assert.Equal(t, []string{"sdnc", "vfc"}, svc.Names())

	require.NoError(t, svc.Configure(map[string]any{
		"vfc": opParams("Restart"),
	}))
	assert.True(t, vfc.IsConfigured())
	assert.False(t, sdnc.IsConfigured())

	require.NoError(t, svc.Start())
	assert.True(t, vfc.IsAlive())
	assert.True(t, vfcOp.IsAlive())
	assert.False(t, sdnc.IsAlive())

	op, err := svc.GetOperator("vfc", "Restart")
	require.NoError(t, err)
	assert.Equal(t, "vfc.Restart", op.FullName())

	_, err = svc.GetActor("so")
	var nf *rerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)

	require.NoError(t, svc.Shutdown())
	assert.False(t, vfc.IsAlive())
	assert.False(t, vfcOp.IsAlive())
}
