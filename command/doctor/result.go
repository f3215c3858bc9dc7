package doctor

import (
	"bytes"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/helper"
)

type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type DoctorResult struct {
	Checks []Check `json:"checks"`
}

func (r *DoctorResult) GetOutput() string {
	var buffer bytes.Buffer

	rows := make([]string, 0, len(r.Checks))

	for _, c := range r.Checks {
		rows = append(rows, fmt.Sprintf("%s|[%s] %s", c.Name, c.Status, c.Detail))
	}

	buffer.WriteString("\n[DOCTOR]\n")
	buffer.WriteString(helper.FormatKV(rows))

	return buffer.String()
}
