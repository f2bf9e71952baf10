package handlers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/justsurfingit/nextsteps/internal/models"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("jobstatus", validJobStatus); err != nil {
			panic(fmt.Sprintf("register jobstatus validator: %v", err))
		}
	})
}

func validJobStatus(fl validator.FieldLevel) bool {
	_, ok := models.ParseJobStatus(fl.Field().String())
	return ok
}
