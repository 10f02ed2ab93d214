// SPDX-License-Identifier: MPL-2.0

// Package runtime prepares the launch of a built service image.
//
// The image environment (PYTHONPATH, PYTHONUNBUFFERED and recipe extras) is
// fixed at build time. Everything else the entry-point needs arrives at launch
// through EnvBuilder, in increasing precedence:
//
//  1. The recipe's dotenv file in the source tree (optional)
//  2. Passthrough and required variables present in the host environment
//  3. --env-file files, in flag order
//  4. --env KEY=VALUE flags
//
// Launch variables may not redefine an image variable, and every required
// variable must end up non-empty.
package runtime
