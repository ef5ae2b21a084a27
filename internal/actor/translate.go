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
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tombee/remediator/pkg/errors"
)

// Validator is implemented by parameter structs that check themselves.
type Validator interface {
	Validate() error
}

// Translate converts a parameter map into the typed struct out, using the
// struct's yaml tags, and validates it when it implements Validator.
func Translate(params map[string]any, out any) error {
	raw, err := yaml.Marshal(params)
	if err != nil {
		return &errors.ValidationError{
			Field:   "parameters",
			Message: fmt.Sprintf("cannot encode parameters: %v", err),
		}
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return &errors.ValidationError{
			Field:   "parameters",
			Message: fmt.Sprintf("cannot decode parameters into %T: %v", out, err),
		}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
